package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli"

	"spacecraft-server/internal/auth"
	"spacecraft-server/internal/protocol"
	"spacecraft-server/internal/recording"
	"spacecraft-server/internal/store"
)

func hashPasswordAction(c *cli.Context) error {
	password := c.Args().First()
	if password == "" {
		return cli.NewExitError("usage: spacecraft hash-password <password>", 2)
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	fmt.Println(hash)
	return nil
}

func matchesAction(c *cli.Context) error {
	st, err := store.Open(c.String("database"), nil)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	matches, err := st.RecentMatches(ctx, c.Int("limit"))
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FINISHED\tMATCH\tSTEPS\tWINNER\tPLAYERS")
	for _, m := range matches {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\n",
			m.FinishedAt.Local().Format(time.DateTime), m.ID[:min(8, len(m.ID))], m.Steps, m.WinnerName, len(m.Players))
	}
	return w.Flush()
}

func replayAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.NewExitError("usage: spacecraft replay <file>", 2)
	}
	r, err := recording.Open(path)
	if err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	defer r.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	if err := replay(r, out, c.Int("fps")); err != nil {
		return cli.NewExitError(err.Error(), 1)
	}
	return nil
}

// replay writes the map description followed by every recorded frame, as a
// monitor would have received them.
func replay(r *recording.Reader, out *bufio.Writer, fps int) error {
	hello, err := protocol.Encode(r.Header().Map)
	if err != nil {
		return err
	}
	out.Write(hello)

	var pace <-chan time.Time
	if fps > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(fps))
		defer ticker.Stop()
		pace = ticker.C
	}
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		batch, err := rec.MonitorBatch()
		if err != nil {
			return err
		}
		out.Write(batch)
		if pace != nil {
			out.Flush()
			<-pace
		}
	}
}
