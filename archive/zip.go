package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// ErrBadLevel is returned for a deflate level outside 1-9.
var ErrBadLevel = errors.New("compression level out of range")

// ErrNotDir is returned when the source folder is not a directory.
var ErrNotDir = errors.New("not a directory")

// Options control how a tree is written. The zero value deflates every file
// at the compressor's default level and stores symlinks as links.
type Options struct {
	// Level is the deflate level, 1-9. Zero means the default level.
	Level int
	// Store writes files without compression.
	Store bool
	// FollowLinks archives the content of symlinks that point at regular
	// files. Links to directories are never descended.
	FollowLinks bool
	// Logf, if set, is called once per entry.
	Logf func(format string, args ...any)
}

func (o Options) check() error {
	if o.Level < 0 || o.Level > flate.BestCompression {
		return fmt.Errorf("%w: %d", ErrBadLevel, o.Level)
	}
	return nil
}

// Stats counts what went into an archive.
type Stats struct {
	Files   int
	Dirs    int
	Links   int
	Skipped int
	Bytes   int64
}

// Archive writes the recursive contents of src to prefix + ".zip".
// The source is checked before the output is touched,
// so a missing source never leaves an empty archive behind.
func Archive(src, prefix string, opts Options) (st Stats, err error) {
	if err = opts.check(); err != nil {
		return st, err
	}
	if err = checkSource(src); err != nil {
		return st, err
	}

	out := prefix + ".zip"
	if err = os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return st, fmt.Errorf("output folder: %w", err)
	}
	f, err := os.Create(out)
	if err != nil {
		return st, fmt.Errorf("output archive: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	self, err := f.Stat()
	if err != nil {
		return st, fmt.Errorf("output archive: %w", err)
	}
	return writeTree(f, src, opts, self)
}

func checkSource(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source folder: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source folder %q: %w", src, ErrNotDir)
	}
	// Opening catches a folder we are not allowed to list.
	d, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("source folder: %w", err)
	}
	return d.Close()
}

func writeTree(w io.Writer, src string, opts Options, self fs.FileInfo) (st Stats, err error) {
	// WalkDir won't descend a root that is itself a symlink.
	root, err := filepath.EvalSymlinks(src)
	if err != nil {
		return st, fmt.Errorf("source folder: %w", err)
	}

	zw := zip.NewWriter(w)
	defer func() {
		err = errors.Join(err, zw.Close())
	}()
	level := opts.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})

	tw := treeWriter{
		zw:     zw,
		root:   root,
		opts:   opts,
		self:   self,
		method: zip.Deflate,
	}
	if opts.Store {
		tw.method = zip.Store
	}
	err = filepath.WalkDir(root, tw.visit)
	return tw.stats, err
}

type treeWriter struct {
	zw     *zip.Writer
	root   string
	opts   Options
	self   fs.FileInfo
	method uint16
	stats  Stats
}

func (tw *treeWriter) logf(format string, args ...any) {
	if tw.opts.Logf != nil {
		tw.opts.Logf(format, args...)
	}
}

func (tw *treeWriter) isSelf(info fs.FileInfo) bool {
	return tw.self != nil && os.SameFile(info, tw.self)
}

func (tw *treeWriter) visit(path string, d fs.DirEntry, err error) error {
	if err != nil {
		return err
	}
	if path == tw.root {
		return nil
	}
	rel, err := filepath.Rel(tw.root, path)
	if err != nil {
		return err
	}
	name := filepath.ToSlash(rel)
	info, err := d.Info()
	if err != nil {
		return err
	}
	if tw.isSelf(info) {
		tw.logf("skip %s: output archive", name)
		return nil
	}

	switch mode := info.Mode(); {
	case mode.IsDir():
		return tw.addDir(name, info)
	case mode.IsRegular():
		return tw.addFile(name, path, info)
	case mode&fs.ModeSymlink != 0:
		return tw.addLink(name, path, info)
	default:
		tw.stats.Skipped++
		tw.logf("skip %s: %v", name, mode.Type())
		return nil
	}
}

func header(name string, info fs.FileInfo, method uint16) (*zip.FileHeader, error) {
	fh, err := zip.FileInfoHeader(info)
	if err != nil {
		return nil, fmt.Errorf("header for %s: %w", name, err)
	}
	fh.Name = name
	fh.Method = method
	return fh, nil
}

func (tw *treeWriter) addDir(name string, info fs.FileInfo) error {
	fh, err := header(name+"/", info, zip.Store)
	if err != nil {
		return err
	}
	fh.UncompressedSize64 = 0
	if _, err = tw.zw.CreateHeader(fh); err != nil {
		return fmt.Errorf("add %s: %w", fh.Name, err)
	}
	tw.stats.Dirs++
	tw.logf("add %s", fh.Name)
	return nil
}

func (tw *treeWriter) addFile(name, path string, info fs.FileInfo) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	fh, err := header(name, info, tw.method)
	if err != nil {
		return err
	}
	ew, err := tw.zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	n, err := io.Copy(ew, f)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	tw.stats.Files++
	tw.stats.Bytes += n
	tw.logf("add %s", name)
	return nil
}

func (tw *treeWriter) addLink(name, path string, info fs.FileInfo) error {
	if tw.opts.FollowLinks {
		target, err := os.Stat(path)
		if err == nil && target.Mode().IsRegular() {
			if tw.isSelf(target) {
				tw.logf("skip %s: output archive", name)
				return nil
			}
			return tw.addFile(name, path, target)
		}
	}

	dest, err := os.Readlink(path)
	if err != nil {
		return err
	}
	fh, err := header(name, info, zip.Store)
	if err != nil {
		return err
	}
	lw, err := tw.zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	n, err := io.WriteString(lw, filepath.ToSlash(dest))
	if err != nil {
		return fmt.Errorf("add %s: %w", name, err)
	}
	tw.stats.Links++
	tw.stats.Bytes += int64(n)
	tw.logf("link %s -> %s", name, dest)
	return nil
}
