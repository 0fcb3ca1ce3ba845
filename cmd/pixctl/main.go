// Command-line client for pixel servers speaking the form-based pixel protocol.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/pixaccess/access"
	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/importer"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/wire"
)

var (
	showHelp   = flag.Bool("help", false, "")
	runVerbose = flag.Bool("verbose", false, "")
	configPath = flag.String("config", "", "")
	repoID     = flag.String("repo", "", "")
	serverURL  = flag.String("url", "", "")
	token      = flag.String("token", "", "")
	owner      = flag.String("owner", "", "")
	signed     = flag.Bool("signed", false, "")
	float      = flag.Bool("float", false, "")
	bigEndian  = flag.Bool("bigendian", false, "")
	outPath    = flag.String("out", "", "")
	thumbSize  = flag.Int("size", 128, "")
	thumbFmt   = flag.String("format", "png", "")
)

const helpMessage = `
pixctl is a command-line client for pixel servers

Usage: pixctl [options] <command>

      -config     =string   TOML configuration with [client] and [[repository]] sections.
      -repo       =string   Repository id from the configuration (default: first listed).
      -url        =string   Pixel server URL when no configuration is used.
      -token      =string   Bearer token for -url.
      -owner      =string   Owner recorded in descriptors as kind:id.
      -signed     (flag)    Create signed arrays.
      -float      (flag)    Create floating point arrays.
      -bigendian  (flag)    Pixel data read or written is big-endian.
      -out        =string   Write read or thumb output here instead of stdout.
      -size       =number   Largest thumbnail dimension (default 128).
      -format     =string   Thumbnail format: png, jpg, gif, tif or bmp (default png).
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Addresses are "whole", "stack/C/T", "plane/Z/C/T", "rows/Y/N/Z/C/T" or
"roi/x0,y0,z0,c0,t0,x1,y1,z1,c1,t1".

Commands:

	create  X,Y,Z,C,T,BYTES
	info    <pixels id>
	sha1    <pixels id>
	finish  <pixels id>
	write   <pixels id> <address> <local file>
	read    <pixels id> <address>
	upload  <local file> ...
	convert <pixels id> <address> <file id> [offset]
	tiff    <pixels id> <plane address> <file id> [directory]
	rmfile  <file id>
	stats   <pixels id> <stack or plane address>
	thumb   <pixels id>
	import  <manifest.json|manifest.yaml>
`

func main() {
	flag.BoolVar(showHelp, "h", false, "Show help message")
	flag.Usage = func() { fmt.Print(helpMessage) }
	flag.Parse()

	if flag.NArg() >= 1 && strings.ToLower(flag.Arg(0)) == "help" {
		*showHelp = true
	}
	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	pixel.SetLogMode(pixel.WarningMode)
	if *runVerbose {
		pixel.Verbose = true
		pixel.SetLogMode(pixel.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := doCommand(ctx, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

type client struct {
	facade *access.Facade
	config *config.Config
	owner  access.Owner
}

func newClient() (*client, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	c.Logging.SetLogger()
	cl := &client{
		facade: access.New(access.ConfigOptions(c.Client)...),
		config: c,
	}
	if *owner != "" {
		kind, id, found := strings.Cut(*owner, ":")
		if !found {
			return nil, fmt.Errorf("owner %q should be kind:id", *owner)
		}
		cl.owner = access.Owner{Kind: kind, ID: id}
	}
	return cl, nil
}

// repository returns the configured endpoint named by id or -repo, else the
// -url endpoint, else the first configured repository.
func (cl *client) repository(id string) (*access.RepositoryEndpoint, error) {
	if id == "" {
		id = *repoID
	}
	switch {
	case id != "":
		rc, err := cl.config.FindRepository(id)
		if err == nil {
			return access.Endpoint(rc), nil
		}
		if *serverURL == "" {
			return nil, err
		}
		return &access.RepositoryEndpoint{ID: id, URL: *serverURL, Token: *token}, nil
	case *serverURL != "":
		return &access.RepositoryEndpoint{ID: "default", URL: *serverURL, Token: *token}, nil
	case len(cl.config.Repository) != 0:
		return access.Endpoint(cl.config.Repository[0]), nil
	}
	return nil, fmt.Errorf("no repository configured; use -url or -config")
}

func (cl *client) describe(ctx context.Context, arg string) (*access.PixelArrayDescriptor, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad pixels id %q", arg)
	}
	repo, err := cl.repository("")
	if err != nil {
		return nil, err
	}
	return cl.facade.Describe(ctx, repo, cl.owner, pixel.PixelsID(id))
}

func (cl *client) file(arg string) (*access.FileDescriptor, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad file id %q", arg)
	}
	repo, err := cl.repository("")
	if err != nil {
		return nil, err
	}
	return &access.FileDescriptor{Repository: repo, Owner: cl.owner, FileID: pixel.FileID(id)}, nil
}

func output() (io.WriteCloser, error) {
	if *outPath == "" {
		return os.Stdout, nil
	}
	return os.Create(*outPath)
}

func writeOutput(data []byte) error {
	w, err := output()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if w != os.Stdout {
		return w.Close()
	}
	return nil
}

func checkArgs(args []string, min int, usage string) error {
	if len(args) < min+1 {
		return fmt.Errorf("usage: pixctl %s %s", args[0], usage)
	}
	return nil
}

func doCommand(ctx context.Context, args []string) error {
	cl, err := newClient()
	if err != nil {
		return err
	}
	switch args[0] {
	case "create":
		if err := checkArgs(args, 1, "X,Y,Z,C,T,BYTES"); err != nil {
			return err
		}
		dims, err := pixel.ParseDims(args[1])
		if err != nil {
			return err
		}
		repo, err := cl.repository("")
		if err != nil {
			return err
		}
		d, err := cl.facade.CreateArray(ctx, repo, cl.owner, dims, *signed, *float)
		if err != nil {
			return err
		}
		fmt.Println(d.PixelsID)

	case "info", "sha1", "finish":
		if err := checkArgs(args, 1, "<pixels id>"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		switch args[0] {
		case "info":
			fmt.Printf("%s\n", d)
			fmt.Printf("  %s in total\n", humanize.IBytes(uint64(d.Dims.TotalBytes())))
			if d.Sealed {
				fmt.Printf("  sha1 %s\n", d.SHA1)
			}
		case "sha1":
			if !d.Sealed {
				return fmt.Errorf("%s: %w", d, pixel.ErrNotReadable)
			}
			fmt.Println(d.SHA1)
		case "finish":
			if err := cl.facade.Finish(ctx, d); err != nil {
				return err
			}
			fmt.Printf("%d %s\n", d.PixelsID, d.SHA1)
		}

	case "write":
		if err := checkArgs(args, 3, "<pixels id> <address> <local file>"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		n, err := cl.facade.Write(ctx, d, addr, wire.LocalFile(args[3]), *bigEndian)
		if err != nil {
			return err
		}
		fmt.Printf("Wrote %s to %s\n", humanize.Bytes(uint64(n)), addr)

	case "read":
		if err := checkArgs(args, 2, "<pixels id> <address>"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		data, err := cl.facade.Read(ctx, d, addr, *bigEndian)
		if err != nil {
			return err
		}
		return writeOutput(data)

	case "upload":
		if err := checkArgs(args, 1, "<local file> ..."); err != nil {
			return err
		}
		repo, err := cl.repository("")
		if err != nil {
			return err
		}
		files, err := cl.facade.UploadAll(ctx, repo, cl.owner, args[1:])
		if err != nil {
			return err
		}
		for _, fd := range files {
			fmt.Printf("%d %s %s %s\n", fd.FileID, fd.SHA1, humanize.Bytes(uint64(fd.Size)), fd.Name)
		}

	case "convert", "tiff":
		if err := checkArgs(args, 3, "<pixels id> <address> <file id> [offset]"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		fd, err := cl.file(args[3])
		if err != nil {
			return err
		}
		var extra int64
		if len(args) > 4 {
			if extra, err = strconv.ParseInt(args[4], 10, 64); err != nil {
				return fmt.Errorf("bad offset or directory %q", args[4])
			}
		}
		var n int64
		if args[0] == "tiff" {
			plane, ok := addr.(pixel.Plane)
			if !ok {
				return fmt.Errorf("tiff conversion needs a plane address, got %s", addr)
			}
			n, err = cl.facade.ConvertTIFF(ctx, d, plane, fd, int(extra))
		} else {
			n, err = cl.facade.Convert(ctx, d, addr, fd, extra, *bigEndian)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Converted %s into %s\n", humanize.Bytes(uint64(n)), addr)

	case "rmfile":
		if err := checkArgs(args, 1, "<file id>"); err != nil {
			return err
		}
		fd, err := cl.file(args[1])
		if err != nil {
			return err
		}
		return cl.facade.DeleteFile(ctx, fd)

	case "stats":
		if err := checkArgs(args, 2, "<pixels id> <stack or plane address>"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		addr, err := parseAddress(args[2])
		if err != nil {
			return err
		}
		var stats access.Stats
		switch a := addr.(type) {
		case pixel.Plane:
			stats, err = cl.facade.PlaneStatistics(ctx, d, a)
		case pixel.Stack:
			stats, err = cl.facade.StackStatistics(ctx, d, a.C, a.T)
		default:
			return fmt.Errorf("statistics need a stack or plane address, got %s", addr)
		}
		if err != nil {
			return err
		}
		fmt.Println(stats)

	case "thumb":
		if err := checkArgs(args, 1, "<pixels id>"); err != nil {
			return err
		}
		d, err := cl.describe(ctx, args[1])
		if err != nil {
			return err
		}
		data, err := cl.facade.Thumbnail(ctx, d, *thumbSize, *thumbFmt)
		if err != nil {
			return err
		}
		return writeOutput(data)

	case "import":
		if err := checkArgs(args, 1, "<manifest>"); err != nil {
			return err
		}
		m, err := importer.Load(args[1])
		if err != nil {
			return err
		}
		repo, err := cl.repository(m.Repository)
		if err != nil {
			return err
		}
		descs, err := importer.Run(ctx, cl.facade, repo, m)
		if err != nil {
			return err
		}
		for _, d := range descs {
			fmt.Printf("%d %s %s\n", d.PixelsID, d.SHA1, d.Dims)
		}

	default:
		return fmt.Errorf("unknown command %q, try 'pixctl help'", args[0])
	}
	return nil
}

// parseAddress parses the address forms listed in the help message.
func parseAddress(s string) (pixel.Address, error) {
	kind, rest, _ := strings.Cut(s, "/")
	var v []int
	if rest != "" {
		for _, part := range strings.FieldsFunc(rest, func(r rune) bool { return r == '/' || r == ',' }) {
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("bad address %q: %v", s, err)
			}
			v = append(v, n)
		}
	}
	want := map[string]int{"whole": 0, "stack": 2, "plane": 3, "rows": 5, "roi": 10}
	n, found := want[strings.ToLower(kind)]
	if !found {
		return nil, fmt.Errorf("unknown address kind %q", kind)
	}
	if len(v) != n {
		return nil, fmt.Errorf("address %q needs %d coordinates, got %d", s, n, len(v))
	}
	switch strings.ToLower(kind) {
	case "stack":
		return pixel.Stack{C: v[0], T: v[1]}, nil
	case "plane":
		return pixel.Plane{Z: v[0], C: v[1], T: v[2]}, nil
	case "rows":
		return pixel.Rows{Y: v[0], N: v[1], Z: v[2], C: v[3], T: v[4]}, nil
	case "roi":
		return pixel.ROI{X0: v[0], Y0: v[1], Z0: v[2], C0: v[3], T0: v[4],
			X1: v[5], Y1: v[6], Z1: v[7], C1: v[8], T1: v[9]}, nil
	}
	return pixel.Whole{}, nil
}
