package archive

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/carlmjohnson/exitcode"
	"github.com/carlmjohnson/flagx"
	"golang.org/x/term"
)

const AppName = "makezip"

var stderr io.Writer = os.Stderr

func CLI(args []string) error {
	var app appEnv
	err := app.ParseArgs(args)
	if err != nil {
		return err
	}
	if err = app.Exec(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return err
}

func (app *appEnv) ParseArgs(args []string) error {
	fl := flag.NewFlagSet(AppName, flag.ContinueOnError)
	fl.SetOutput(stderr)
	level := fl.Int("level", -1, "deflate `level`: -1 for the default, 0 to store without compression, 1-9 otherwise")
	fl.BoolVar(&app.opts.FollowLinks, "follow-links", false, "archive the content of symlinked files instead of the links")
	silent := fl.Bool("silent", false, "don't log anything")
	verbose := fl.Bool("v", false, "log each entry as it is added")
	fl.Usage = func() {
		fmt.Fprintf(fl.Output(), `makezip - Zip a folder for release.

Usage:

	makezip [options] <source_folder> <output_path_prefix>

Writes the contents of source_folder to output_path_prefix.zip.
Every option may also be set as an environment variable, e.g. MAKEZIP_LEVEL=9.

Options:
`)
		fl.PrintDefaults()
		fmt.Fprintln(fl.Output(), "")
	}
	// flag has already reported its own parse errors.
	if err := fl.Parse(args); err != nil {
		return exitcode.Set(err, 2)
	}
	usageErr := func(err error) error {
		fl.Usage()
		fmt.Fprintf(fl.Output(), "Error: %v\n", err)
		return exitcode.Set(err, 2)
	}
	if err := flagx.ParseEnv(fl, AppName); err != nil {
		return usageErr(err)
	}
	if fl.NArg() != 2 {
		return usageErr(fmt.Errorf("need source folder and output path prefix, got %d arguments", fl.NArg()))
	}
	app.src, app.prefix = fl.Arg(0), fl.Arg(1)

	switch {
	case *level == -1:
	case *level == 0:
		app.opts.Store = true
	case *level >= 1 && *level <= 9:
		app.opts.Level = *level
	default:
		return usageErr(fmt.Errorf("bad -level %d: %w", *level, ErrBadLevel))
	}

	log.SetPrefix(AppName + ": ")
	log.SetFlags(log.Lmsgprefix | log.LstdFlags)
	log.SetOutput(stderr)
	if *silent {
		log.SetOutput(io.Discard)
	} else if *verbose || term.IsTerminal(int(os.Stderr.Fd())) {
		app.opts.Logf = log.Printf
	}
	return nil
}

type appEnv struct {
	src    string
	prefix string
	opts   Options
}

func (app *appEnv) Exec() error {
	st, err := Archive(app.src, app.prefix, app.opts)
	if err != nil {
		return err
	}
	log.Printf("wrote %s (%d files, %d dirs, %d bytes)",
		app.prefix+".zip", st.Files, st.Dirs, st.Bytes)
	return nil
}
