// Command ninepmount dials a 9P server and prints the contents of a
// single file, demonstrating a Mount's attach/walk/open/read sequence
// end to end.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"

	"aqwari.net/net/mnt"
	"aqwari.net/net/styx/styxproto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"
)

var (
	uname   string
	aname   string
	msize   uint32
	verbose bool
)

func main() {
	root := &cobra.Command{
		Use:   "ninepmount addr path",
		Short: "Read a file from a 9P server through a mnt.Mount",
		Args:  cobra.ExactArgs(2),
		RunE:  run,
	}
	flags := root.Flags()
	flags.StringVar(&uname, "uname", os.Getenv("USER"), "user name to attach as")
	flags.StringVar(&aname, "aname", "", "attach point on the server")
	flags.Uint32Var(&msize, "msize", 0, "maximum message size to negotiate")
	flags.BoolVar(&verbose, "v", false, "trace every message sent and received")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	addr, path := args[0], args[1]
	ctx := context.Background()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return err
	}

	log := logrus.New()
	opts := mnt.Options{MaxSize: msize, Logger: log}
	if verbose {
		log.SetLevel(logrus.DebugLevel)
		opts.Trace = func(msg styxproto.Msg) {
			log.WithField("tag", msg.Tag()).Debug("9p")
		}
	}

	m, err := mnt.Dial(ctx, conn, opts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer m.Close()

	root, err := m.Attach(ctx, 0, nil, uname, aname)
	if err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	defer m.Clunk(ctx, root)

	elems := strings.Split(strings.Trim(path, "/"), "/")
	if len(elems) == 1 && elems[0] == "" {
		elems = nil
	}
	file, _, err := m.Walk(ctx, root, walkTarget(m), elems...)
	if err != nil {
		return fmt.Errorf("walk %q: %w", path, err)
	}
	defer m.Clunk(ctx, file)

	if err := m.Open(ctx, file, 0); err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}

	buf := make([]byte, 4096)
	var offset int64
	for {
		n, err := m.Read(ctx, file, offset, buf)
		if n > 0 {
			os.Stdout.Write(buf[:n])
			offset += int64(n)
		}
		if err != nil {
			return err
		}
		if n < len(buf) {
			break
		}
	}
	return nil
}

func walkTarget(m *mnt.Mount) *uint32 {
	fid, err := m.NewFid()
	if err != nil {
		return nil
	}
	return &fid
}
