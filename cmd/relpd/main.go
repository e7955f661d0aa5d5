// Command relpd is an example RELP receiver: it accepts RELP connections,
// negotiates the syslog command, and logs each received message.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/prometheusx"
	"github.com/m-lab/go/rtx"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/relp"
	"github.com/rsyslog/rsyslog-sub006/session"
	"github.com/rsyslog/rsyslog-sub006/transport"
)

func init() {
	// Always prepend the filename and line number.
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	listenAddr = flag.String("addr", ":20514", "Address to listen for RELP connections on")
	promPort   = flag.String("prom", ":9090", "Prometheus metrics export address and port")
	windowSize = flag.Int("window", 128, "Per-session send window size")
	outputDir  = flag.String("output", "", "Directory to write received messages into, one file per UTC day. Default (empty) writes to stdout")

	enableTLS  = flag.Bool("tls", false, "Require TLS on accepted connections")
	authMode   = flag.String("auth-mode", "none", "Peer auth mode once TLS is enabled: none, fingerprint, name")
	caCertFile = flag.String("ca-cert", "", "CA certificate file for verifying client certs")
	ownCert    = flag.String("cert", "", "Server certificate file")
	ownKey     = flag.String("key", "", "Server private key file")
	permitted  stringList
)

func init() {
	flag.Var(&permitted, "permit-peer", "Permitted peer fingerprint or name pattern (repeatable)")
}

// stringList is a repeatable flag.Value collecting every -permit-peer
// occurrence on the command line.
type stringList []string

func (l *stringList) String() string {
	return strings.Join(*l, ",")
}

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseAuthMode(s string) transport.AuthMode {
	switch s {
	case "fingerprint":
		return transport.AuthFingerprint
	case "name":
		return transport.AuthName
	default:
		return transport.AuthNone
	}
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	promSrv := prometheusx.MustStartPrometheus(*promPort)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer promSrv.Shutdown(ctx)

	commands := command.NewEnableMap()
	commands.Set(command.Syslog, command.Desired)

	cfg := relp.Config{
		ListenAddr: *listenAddr,
		WindowSize: *windowSize,
		Commands:   commands,
		Transport: transport.Config{
			EnableTLS:      *enableTLS,
			AuthMode:       parseAuthMode(*authMode),
			CACertFile:     *caCertFile,
			OwnCertFile:    *ownCert,
			PrivKeyFile:    *ownKey,
			PermittedPeers: []string(permitted),
		},
	}

	var out *dayWriter
	if *outputDir != "" {
		rtx.Must(os.MkdirAll(*outputDir, 0755), "Could not create output directory %s", *outputDir)
		out = newDayWriter(*outputDir)
	}

	cb := session.Callbacks{
		OnSyslogReceive: func(hostname, ip string, data []byte) errcode.Code {
			line := fmt.Sprintf("%s %s (%s): %s", time.Now().UTC().Format(time.RFC3339), hostname, ip, data)
			if out != nil {
				if err := out.WriteLine(line); err != nil {
					log.Println("writing output file:", err)
					return errcode.IoErr
				}
			} else {
				fmt.Println(line)
			}
			return errcode.OK
		},
		OnAuthError: func(sess *session.Session, authData, message string) {
			log.Printf("auth error from %s: %s", authData, message)
		},
		OnError: func(sess *session.Session, objectInfo, message string, code errcode.Code) {
			log.Printf("session error [%s] %s: %s", code, objectInfo, message)
		},
		OnGenericError: func(objectInfo, message string, code errcode.Code) {
			log.Printf("engine error [%s] %s: %s", code, objectInfo, message)
		},
	}

	engine, err := relp.NewEngine(cfg, cb)
	rtx.Must(err, "Could not build RELP engine")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutting down")
		engine.Shutdown()
		if out != nil {
			out.Close()
		}
		cancel()
	}()

	rtx.Must(engine.Run(ctx), "RELP engine exited with error")
}
