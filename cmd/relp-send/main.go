// Command relp-send reads lines from stdin and sends each as a RELP syslog
// frame to a receiver, reporting how long each send call took (the frame is
// written out; its rsp is not awaited).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/relp"
	"github.com/rsyslog/rsyslog-sub006/session"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	dialAddr   = flag.String("addr", "127.0.0.1:20514", "Address to connect to")
	timeout    = flag.Duration("timeout", 90*time.Second, "Session timeout")
	windowSize = flag.Int("window", 128, "Send window size")
	autoRetry  = flag.Bool("auto-retry", true, "Reconnect and resend unacked frames on connection loss")
)

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	commands := command.NewEnableMap()
	commands.Set(command.Syslog, command.Desired)

	cfg := relp.Config{
		DialAddr:   *dialAddr,
		WindowSize: *windowSize,
		Timeout:    *timeout,
		Commands:   commands,
		AutoRetry:  *autoRetry,
	}

	client, err := relp.NewClient(cfg, session.Callbacks{})
	rtx.Must(err, "Could not build RELP client")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	rtx.Must(client.Connect(ctx), "Could not connect to %s", *dialAddr)

	scanner := bufio.NewScanner(os.Stdin)
	var sent, failed int
	for scanner.Scan() {
		line := scanner.Text()
		start := time.Now()
		sendCtx, sendCancel := context.WithTimeout(context.Background(), *timeout)
		txnr, err := client.SendSyslog(sendCtx, []byte(line))
		sendCancel()
		if err != nil {
			failed++
			log.Printf("send failed (txnr=%d): %v", txnr, err)
			continue
		}
		sent++
		fmt.Printf("txnr=%d send=%s\n", txnr, time.Since(start))
	}
	rtx.Must(scanner.Err(), "Error reading stdin")

	closeCtx, closeCancel := context.WithTimeout(context.Background(), *timeout)
	defer closeCancel()
	if err := client.Disconnect(closeCtx); err != nil {
		log.Println("disconnect:", err)
	}
	log.Printf("sent %d, failed %d", sent, failed)
}
