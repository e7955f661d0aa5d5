// Command relp-stats runs a RELP receiver and periodically dumps a CSV
// snapshot of live session/window state to stdout, in the manner of
// cmd/csvtool's ArchiveRecord-to-CSV conversion.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/m-lab/go/flagx"
	"github.com/m-lab/go/rtx"

	"github.com/rsyslog/rsyslog-sub006/command"
	"github.com/rsyslog/rsyslog-sub006/errcode"
	"github.com/rsyslog/rsyslog-sub006/relp"
	"github.com/rsyslog/rsyslog-sub006/session"
)

func init() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}

var (
	listenAddr = flag.String("addr", ":20514", "Address to listen for RELP connections on")
	interval   = flag.Duration("interval", 5*time.Second, "Snapshot interval")
)

// sessionRow is one CSV row: a point-in-time view of a session's state.
type sessionRow struct {
	UUID    string `csv:"uuid"`
	Role    string `csv:"role"`
	Peer    string `csv:"peer"`
	State   string `csv:"state"`
	Unacked int    `csv:"unacked"`
}

func snapshot(sessions []*session.Session) []*sessionRow {
	rows := make([]*sessionRow, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, &sessionRow{
			UUID:    s.UUID,
			Role:    s.Role.String(),
			Peer:    s.PeerAddr(),
			State:   s.State().String(),
			Unacked: s.UnackedLen(),
		})
	}
	return rows
}

func main() {
	flag.Parse()
	flagx.ArgsFromEnv(flag.CommandLine)

	commands := command.NewEnableMap()
	commands.Set(command.Syslog, command.Desired)

	cfg := relp.Config{
		ListenAddr: *listenAddr,
		Commands:   commands,
	}
	cb := session.Callbacks{
		OnSyslogReceive: func(hostname, ip string, data []byte) errcode.Code {
			return errcode.OK
		},
	}

	engine, err := relp.NewEngine(cfg, cb)
	rtx.Must(err, "Could not build RELP engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		rtx.Must(engine.Run(ctx), "RELP engine exited with error")
	}()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for range ticker.C {
		rows := snapshot(engine.Sessions())
		if err := gocsv.Marshal(rows, os.Stdout); err != nil {
			log.Println("csv marshal:", err)
		}
	}
}
