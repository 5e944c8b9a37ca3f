package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	ma "github.com/multiformats/go-multiaddr"

	"xdao.co/ipfs-simple/cidutil"
	"xdao.co/ipfs-simple/client"
	"xdao.co/ipfs-simple/storage"
	"xdao.co/ipfs-simple/storage/bundle"
)

// errUsage marks bad invocations (exit status 2).
var errUsage = errors.New("usage")

type env struct {
	c   *client.Client
	out io.Writer

	outPath string
	asJSON  bool
	index   bool
}

type command struct {
	usage string
	// nargs is the exact positional argument count, or -1 for one or more.
	nargs int
	// offline commands never build a client.
	offline bool
	run     func(ctx context.Context, e *env, args []string) error
}

var commands = map[string]command{
	"digest": {usage: "<cid>", nargs: 1, offline: true, run: func(_ context.Context, e *env, args []string) error {
		d, err := cidutil.IdentifierToDigest(args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, d)
	}},
	"cid": {usage: "<sha256-hex>", nargs: 1, offline: true, run: func(_ context.Context, e *env, args []string) error {
		id, err := cidutil.DigestToIdentifier(args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, id)
	}},
	"add": {usage: "[--json] <file>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var id string
		if e.asJSON {
			var v any
			if err := json.Unmarshal(b, &v); err != nil {
				return storage.WrapError(storage.KindMalformedJSON, "read", args[0], err)
			}
			id, err = e.c.PublishJSON(ctx, v)
		} else {
			id, err = e.c.PublishBytes(ctx, b)
		}
		if err != nil {
			return err
		}
		return writeLine(e.out, id)
	}},
	"cat": {usage: "[--json] [--out <file>] <cid>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		var b []byte
		if e.asJSON {
			var v any
			if err := e.c.FetchJSON(ctx, args[0], &v); err != nil {
				return err
			}
			var err error
			if b, err = json.MarshalIndent(v, "", "  "); err != nil {
				return err
			}
			b = append(b, '\n')
		} else {
			var err error
			if b, err = e.c.FetchBytes(ctx, args[0]); err != nil {
				return err
			}
		}
		return e.write(b)
	}},
	"pin": {usage: "<cid>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		ok, err := e.c.PinAdd(ctx, args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, strconv.FormatBool(ok))
	}},
	"unpin": {usage: "<cid>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		return e.c.PinRemove(ctx, args[0])
	}},
	"pinned": {usage: "<cid>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		ok, err := e.c.IsPinned(ctx, args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, strconv.FormatBool(ok))
	}},
	"pins": {nargs: 0, run: func(ctx context.Context, e *env, _ []string) error {
		ids, err := e.c.ListPinned(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := writeLine(e.out, id); err != nil {
				return err
			}
		}
		return nil
	}},
	"size": {usage: "<cid>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		n, err := e.c.CumulativeSize(ctx, args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, strconv.FormatInt(n, 10))
	}},
	"connect": {usage: "<multiaddr>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		if _, err := ma.NewMultiaddr(args[0]); err != nil {
			return fmt.Errorf("%w: invalid multiaddr %q: %v", errUsage, args[0], err)
		}
		ok, err := e.c.ConnectPeer(ctx, args[0])
		if err != nil {
			return err
		}
		return writeLine(e.out, strconv.FormatBool(ok))
	}},
	"id": {nargs: 0, run: func(ctx context.Context, e *env, _ []string) error {
		id, err := e.c.Identify(ctx)
		if err != nil {
			return err
		}
		b, err := json.MarshalIndent(id, "", "  ")
		if err != nil {
			return err
		}
		return writeLine(e.out, string(b))
	}},
	"export": {usage: "[--index] [--out <file>] <cid>...", nargs: -1, run: func(ctx context.Context, e *env, args []string) error {
		var buf bytes.Buffer
		if err := bundle.Export(ctx, &buf, e.c, args, bundle.ExportOptions{IncludeIndex: e.index}); err != nil {
			return err
		}
		return e.write(buf.Bytes())
	}},
	"import": {usage: "<bundle.tar>", nargs: 1, run: func(ctx context.Context, e *env, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		imported, err := bundle.Import(ctx, f, e.c)
		for _, im := range imported {
			if im.PublishedAs == im.ID {
				_ = writeLine(e.out, im.ID)
				continue
			}
			_, _ = fmt.Fprintf(e.out, "%s\t%s\n", im.ID, im.PublishedAs)
		}
		return err
	}},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for n := range commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (cmd command) exec(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("ipfs-simple", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var common commonFlags
	e := &env{out: out}
	if !cmd.offline {
		common.add(fs)
		fs.StringVar(&e.outPath, "out", "", "Output file (optional; default stdout)")
		fs.BoolVar(&e.asJSON, "json", false, "Treat content as JSON")
		fs.BoolVar(&e.index, "index", false, "Include index.json in exported bundles")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	rest := fs.Args()
	if (cmd.nargs >= 0 && len(rest) != cmd.nargs) || (cmd.nargs < 0 && len(rest) == 0) {
		fmt.Fprintf(errOut, "usage: ipfs-simple <command> [common flags] %s\n", cmd.usage)
		return 2
	}

	ctx := context.Background()
	if !cmd.offline {
		c, closeFn, err := common.openClient(ctx)
		if err != nil {
			fmt.Fprintln(errOut, err)
			return 1
		}
		defer closeFn()
		e.c = c
	}

	if err := cmd.run(ctx, e, rest); err != nil {
		fmt.Fprintln(errOut, err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func (e *env) write(b []byte) error {
	if e.outPath == "" {
		_, err := e.out.Write(b)
		return err
	}
	return os.WriteFile(e.outPath, b, 0o600)
}

func writeLine(w io.Writer, s string) error {
	_, err := fmt.Fprintln(w, s)
	return err
}
