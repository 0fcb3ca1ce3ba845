// Reference pixel server for the form-based pixel protocol.
// Provides commands: serve, token, about.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/janelia-flyem/pixaccess/config"
	"github.com/janelia-flyem/pixaccess/pixel"
	"github.com/janelia-flyem/pixaccess/server"
)

// Version is set at link time.
var Version = "dev"

var (
	// Display usage if true.
	showHelp = flag.Bool("help", false, "")

	// Run in verbose mode if true.
	runVerbose = flag.Bool("verbose", false, "")

	// Path to the TOML configuration.  Leave unset for an in-memory server.
	configPath = flag.String("config", "", "")

	// Address for http communication; overrides the configuration.
	httpAddress = flag.String("http", "", "")

	// Number of logical CPUs to use.
	useCPU = flag.Int("numcpu", 0, "")
)

const helpMessage = `
pixd is a reference pixel server for the form-based pixel protocol

Usage: pixd [options] <command>

      -config     =string   Path to TOML configuration file.
      -http       =string   Address for HTTP communication.
      -numcpu     =number   Number of logical CPUs to use.
      -verbose    (flag)    Run in verbose mode.
  -h, -help       (flag)    Show help message

Commands:

	about
	help
	serve
	token <user> [duration]   Print a JWT for the configured secret_key, e.g. "token alice 24h".
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
	if *runVerbose {
		pixel.Verbose = true
		pixel.SetLogMode(pixel.DebugMode)
	}
	if *useCPU > 0 {
		runtime.GOMAXPROCS(*useCPU)
	}

	if err := doCommand(flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	c := config.Default()
	if *configPath != "" {
		var err error
		if c, err = config.Load(*configPath); err != nil {
			return nil, err
		}
	}
	if *httpAddress != "" {
		c.Server.HTTPAddress = *httpAddress
	}
	return c, nil
}

func doCommand(args []string) error {
	switch args[0] {
	case "about":
		fmt.Printf("pixd %s (%s)\n", Version, runtime.Version())
		return nil
	case "serve":
		return doServe()
	case "token":
		return doToken(args[1:])
	default:
		return fmt.Errorf("unknown command %q, try 'pixd help'", args[0])
	}
}

// doServe opens the configured store and serves until interrupted.
func doServe() error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	c.Logging.SetLogger()
	if c.Store.Path == "" {
		pixel.Warningf("No store path configured; pixels will not persist past shutdown.\n")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Open(ctx, c)
	if err != nil {
		return err
	}
	ln, err := srv.Listen()
	if err != nil {
		srv.Close()
		return err
	}
	serveErr := srv.Serve(ctx, ln)
	if err := srv.Close(); err != nil {
		pixel.Errorf("Error closing server: %v\n", err)
	}
	pixel.Shutdown()
	return serveErr
}

func doToken(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("token command must be followed by a user name")
	}
	c, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("no [auth] secret_key in configuration")
	}
	var ttl time.Duration
	if len(args) > 1 {
		if ttl, err = time.ParseDuration(args[1]); err != nil {
			return fmt.Errorf("bad token duration %q: %v", args[1], err)
		}
	}
	token, err := server.GenerateJWT(c.Auth.SecretKey, args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
