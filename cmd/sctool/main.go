// sctool inspects scene cache files.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Faultbox/meshbridge/pkg/scene"
	"github.com/Faultbox/meshbridge/pkg/scenecache"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(os.Stdout, args)
	case "list", "ls":
		err = cmdList(os.Stdout, args)
	case "frames":
		err = cmdFrames(os.Stdout, args)
	case "dump":
		err = cmdDump(os.Stdout, args)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `sctool - scene cache inspector

Usage:
  sctool <command> [options]

Commands:
  info <file.sc>                  Show header and frame summary
  list <file.sc> [pattern]        List entities (optional glob pattern)
  frames <file.sc>                List frame times and sizes
  dump [-t time] <file.sc> [path] Print the entities of one frame

Examples:
  sctool info anim.sc
  sctool list anim.sc "Box*"
  sctool dump -t 0.5 anim.sc /Box`)
}

func cmdInfo(w io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sctool info <file.sc>")
	}
	r, err := scenecache.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	start, end := r.TimeRange()
	var size uint64
	for _, f := range r.Frames() {
		size += f.Size()
	}
	constant := 0
	for _, m := range r.Meta() {
		if m.Constant {
			constant++
		}
	}

	fmt.Fprintf(w, "Cache:     %s\n", args[0])
	fmt.Fprintf(w, "Version:   %d\n", h.Version)
	fmt.Fprintf(w, "Encoding:  %s (level %d)\n", h.Encoding, h.Level)
	fmt.Fprintf(w, "Segments:  %d max\n", h.MaxSegments)
	fmt.Fprintf(w, "Frames:    %d (%.3fs - %.3fs)\n", r.Len(), start, end)
	fmt.Fprintf(w, "Entities:  %d (%d constant)\n", len(r.Meta()), constant)
	fmt.Fprintf(w, "Size:      %.2f KB\n", float64(size)/1024)
	return nil
}

func cmdList(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	limit := fs.Int("n", 0, "Limit output to N entities (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: sctool list <file.sc> [pattern]")
	}
	r, err := scenecache.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	pattern := ""
	if fs.NArg() > 1 {
		pattern = strings.ToLower(fs.Arg(1))
	}

	count := 0
	for _, m := range r.Meta() {
		if !matches(m.Path, pattern) {
			continue
		}
		var flags []string
		if m.Constant {
			flags = append(flags, "constant")
		} else if m.ConstantTopology {
			flags = append(flags, "constant-topology")
		}
		fmt.Fprintf(w, "%-8s %s %s\n", scene.EntityKind(m.Kind), m.Path, strings.Join(flags, ","))
		count++
		if *limit > 0 && count >= *limit {
			break
		}
	}
	return nil
}

func cmdFrames(w io.Writer, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sctool frames <file.sc>")
	}
	r, err := scenecache.Open(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	for i, f := range r.Frames() {
		fmt.Fprintf(w, "%4d  t=%.4f  segments=%d  bytes=%d\n", i, f.Time, len(f.Segments), f.Size())
	}
	return nil
}

func cmdDump(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	t := fs.Float64("t", 0, "Time in seconds; the nearest earlier frame is shown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: sctool dump [-t time] <file.sc> [path]")
	}
	r, err := scenecache.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer r.Close()

	if r.Len() == 0 {
		return fmt.Errorf("%s has no frames", fs.Arg(0))
	}
	i := r.FrameAt(float32(*t))
	s, err := r.ReadFrame(i)
	if err != nil {
		return err
	}
	only := ""
	if fs.NArg() > 1 {
		only = fs.Arg(1)
	}

	fmt.Fprintf(w, "frame %d t=%.4f\n", i, r.Frames()[i].Time)
	for _, e := range s.Entities {
		if only != "" && e.Path != only {
			continue
		}
		p := e.Local.Position
		fmt.Fprintf(w, "%-8s %s pos=(%.3f, %.3f, %.3f)", e.Kind, e.Path, p.X, p.Y, p.Z)
		if scene.ParentPath(e.Path) != "" {
			wp := s.WorldMatrix(e.Path).Translation()
			fmt.Fprintf(w, " world=(%.3f, %.3f, %.3f)", wp.X, wp.Y, wp.Z)
		}
		if e.Mesh != nil && e.Mesh.VertexCount() > 0 {
			fmt.Fprintf(w, " verts=%d polys=%d", e.Mesh.VertexCount(), e.Mesh.PolygonCount())
		}
		fmt.Fprintln(w)
	}
	for _, m := range s.Materials {
		fmt.Fprintf(w, "material %d %s", m.ID, m.Name)
		if m.ColorMap != nil {
			fmt.Fprintf(w, " map=%s (%d bytes)", m.ColorMap.Name, len(m.ColorMap.Data))
		}
		fmt.Fprintln(w)
	}
	return nil
}

// matches reports whether path matches a glob on its name or contains
// pattern. An empty pattern matches everything.
func matches(path, pattern string) bool {
	if pattern == "" {
		return true
	}
	lower := strings.ToLower(path)
	if ok, _ := filepath.Match(pattern, filepath.Base(lower)); ok {
		return true
	}
	return strings.Contains(lower, pattern)
}
