package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/hnrobert/acctdb/internal/acctview"
	"github.com/hnrobert/acctdb/internal/auth"
	"github.com/hnrobert/acctdb/internal/config"
	"github.com/hnrobert/acctdb/internal/lasterr"
	"github.com/hnrobert/acctdb/internal/logger"
	"github.com/hnrobert/acctdb/internal/procscan"
	"github.com/hnrobert/acctdb/internal/syscheck"
	"github.com/hnrobert/acctdb/internal/usermgr"
)

// Version is set at build time.
var Version = "dev"

// configPath is the global -config, the default for every command's own -config.
var configPath string

func main() {
	os.Exit(run())
}

func run() int {
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Usage = printUsage
	flag.Parse()
	if flag.NArg() < 1 {
		printUsage()
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer logger.Close()

	name, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch name {
	case "groups":
		err = runGroups(args)
	case "group":
		err = runGroup(args)
	case "group-add":
		err = runGroupAdd(ctx, args)
	case "group-del":
		err = runGroupDel(ctx, args)
	case "member-add":
		err = runMember(ctx, "member-add", args)
	case "member-del":
		err = runMember(ctx, "member-del", args)
	case "set-members":
		err = runSetMembers(ctx, args)
	case "user":
		err = runUser(args)
	case "user-del":
		err = runUserDel(ctx, args)
	case "set-shell":
		err = runSetShell(ctx, args)
	case "verify":
		err = runVerify(args)
	case "config":
		err = runConfig(args)
	case "help":
		printUsage()
		return 0
	case "version":
		fmt.Printf("acctdb version %s\n", Version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
		printUsage()
		return 2
	}
	if err != nil {
		return report(err)
	}
	return 0
}

func printUsage() {
	fmt.Println(`acctdb - safe edits of /etc/passwd, /etc/shadow and /etc/group

Usage:
  acctdb [-config FILE] <command> [args]

Commands:
  acctdb groups                          List groups in database format
  acctdb group [-native] <name|gid>      Show one group
  acctdb group-add [-gid N] <name> [member...]
  acctdb group-del <name>
  acctdb member-add <group> <user>
  acctdb member-del <group> <user>
  acctdb set-members <group> [member...] Replace the member list
  acctdb user [-native] <name|uid>       Show one user and its groups
  acctdb user-del [-force] <name>        Remove a user from all three databases
  acctdb set-shell <user> <shell>
  acctdb verify <user>                   Check a password read from stdin
  acctdb config                          Print the effective configuration
  acctdb version

-config is accepted before or after the command:
  -config string   Path to configuration file (default /etc/acctdb.yaml if present)

Environment Variables:
  ACCTDB_ROOT          Host filesystem root (default /)
  ACCTDB_LOCK_TIMEOUT  Lock wait, e.g. 15s
  ACCTDB_MIN_GID       First automatically assigned GID
  ACCTDB_VERIFY        Check rewrites with grpck/pwck
  ACCTDB_LOG_LEVEL     debug, info, warn, error`)
}

// report prints err and returns the exit status: 2 for input the databases
// cannot hold, 1 for everything else.
func report(err error) int {
	msg := err.Error()
	if code := lasterr.Capture(err); code != lasterr.None && !strings.Contains(msg, code.String()) {
		msg = fmt.Sprintf("%s (%s)", msg, code)
	}
	switch {
	case errors.Is(err, usermgr.ErrInvalidField):
		fmt.Fprintf(os.Stderr, "Invalid input: %s\n", msg)
		return 2
	case errors.Is(err, usermgr.ErrWriteFailed):
		fmt.Fprintf(os.Stderr, "Write failed, database left unchanged: %s\n", msg)
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	return 1
}

type command struct {
	fs         *flag.FlagSet
	configPath *string
	cfg        *config.Config
}

func newCommand(name string) *command {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	return &command{
		fs:         fs,
		configPath: fs.String("config", configPath, "Path to configuration file"),
	}
}

func (c *command) parse(args []string, minArgs int, usage string) error {
	if err := c.fs.Parse(args); err != nil {
		return err
	}
	if c.fs.NArg() < minArgs {
		return fmt.Errorf("usage: acctdb %s %s", c.fs.Name(), usage)
	}
	return nil
}

// config loads and applies the configuration once per command.
func (c *command) config() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path := *c.configPath
	if path == "" {
		if _, err := os.Stat(config.DefaultPath); err == nil {
			path = config.DefaultPath
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Apply(); err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *command) manager() (*usermgr.Manager, error) {
	cfg, err := c.config()
	if err != nil {
		return nil, err
	}
	m := usermgr.NewManager(cfg)
	m.Procs = procscan.New(filepath.Join(cfg.Root, "proc"))
	if cfg.VerifyWithSystemTools {
		m.Checker = syscheck.New(cfg.Root)
	}
	return m, nil
}

func (c *command) lookup(native bool) (acctview.Lookup, error) {
	if _, err := c.config(); err != nil {
		return nil, err
	}
	if native {
		return acctview.NewNativeLookup()
	}
	return acctview.NewFileLookup()
}

func runGroups(args []string) error {
	c := newCommand("groups")
	if err := c.parse(args, 0, ""); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	groups, err := m.ListGroups()
	if err != nil {
		return err
	}
	w := bufio.NewWriter(os.Stdout)
	for _, g := range groups {
		if err := usermgr.EncodeGroup(w, g); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runGroup(args []string) error {
	c := newCommand("group")
	native := c.fs.Bool("native", false, "Resolve through the C library (NSS)")
	if err := c.parse(args, 1, "[-native] <name|gid>"); err != nil {
		return err
	}
	l, err := c.lookup(*native)
	if err != nil {
		return err
	}
	key := c.fs.Arg(0)
	var g *acctview.Group
	if id, perr := strconv.ParseUint(key, 10, 32); perr == nil {
		g, err = l.GroupByID(uint32(id))
	} else {
		g, err = l.GroupByName(key)
	}
	if err != nil {
		return err
	}
	name, _ := g.Name()
	gid, _ := g.GID()
	members, _ := g.Members()
	fmt.Printf("name:    %s\ngid:     %d\nmembers: %s\n", name, gid, strings.Join(members, ","))
	return nil
}

func runGroupAdd(ctx context.Context, args []string) error {
	c := newCommand("group-add")
	gid := c.fs.Int("gid", -1, "GID to use (default: next free)")
	if err := c.parse(args, 1, "[-gid N] <name> [member...]"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	g, err := m.AddGroup(ctx, c.fs.Arg(0), *gid, c.fs.Args()[1:])
	if err != nil {
		return err
	}
	fmt.Printf("Added group %s (gid %d)\n", g.Name, g.GID)
	return nil
}

func runGroupDel(ctx context.Context, args []string) error {
	c := newCommand("group-del")
	if err := c.parse(args, 1, "<name>"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	return m.DeleteGroup(ctx, c.fs.Arg(0))
}

func runMember(ctx context.Context, name string, args []string) error {
	c := newCommand(name)
	if err := c.parse(args, 2, "<group> <user>"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	if name == "member-add" {
		return m.AddMember(ctx, c.fs.Arg(0), c.fs.Arg(1))
	}
	return m.RemoveMember(ctx, c.fs.Arg(0), c.fs.Arg(1))
}

func runSetMembers(ctx context.Context, args []string) error {
	c := newCommand("set-members")
	if err := c.parse(args, 1, "<group> [member...]"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	return m.SetMembers(ctx, c.fs.Arg(0), c.fs.Args()[1:])
}

func runUser(args []string) error {
	c := newCommand("user")
	native := c.fs.Bool("native", false, "Resolve through the C library (NSS)")
	if err := c.parse(args, 1, "[-native] <name|uid>"); err != nil {
		return err
	}
	l, err := c.lookup(*native)
	if err != nil {
		return err
	}
	key := c.fs.Arg(0)
	var p *acctview.Passwd
	if id, perr := strconv.ParseUint(key, 10, 32); perr == nil {
		p, err = l.UserByID(uint32(id))
	} else {
		p, err = l.UserByName(key)
	}
	if err != nil {
		return err
	}
	name, _ := p.Name()
	uid, _ := p.UID()
	gid, _ := p.GID()
	home, _ := p.Home()
	shell, _ := p.Shell()
	fmt.Printf("name:   %s\nuid:    %d\ngid:    %d\nhome:   %s\nshell:  %s\n", name, uid, gid, home, shell)

	m, err := c.manager()
	if err != nil {
		return err
	}
	groups, err := m.GroupsOf(name)
	if err != nil {
		return err
	}
	fmt.Printf("groups: %s\n", strings.Join(groups, ","))
	if admin, err := m.IsAdmin(name); err == nil && admin {
		fmt.Println("admin:  yes")
	}
	return nil
}

func runUserDel(ctx context.Context, args []string) error {
	c := newCommand("user-del")
	force := c.fs.Bool("force", false, "Remove the user even if it still runs processes")
	if err := c.parse(args, 1, "[-force] <name>"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	return m.RemoveUser(ctx, c.fs.Arg(0), *force)
}

func runSetShell(ctx context.Context, args []string) error {
	c := newCommand("set-shell")
	if err := c.parse(args, 2, "<user> <shell>"); err != nil {
		return err
	}
	m, err := c.manager()
	if err != nil {
		return err
	}
	return m.SetShell(ctx, c.fs.Arg(0), c.fs.Arg(1))
}

func runVerify(args []string) error {
	c := newCommand("verify")
	native := c.fs.Bool("native", false, "Read shadow through the C library")
	noFallback := c.fs.Bool("no-su", false, "Do not fall back to su(1) for unsupported hashes")
	if err := c.parse(args, 1, "[-native] [-no-su] <user>"); err != nil {
		return err
	}
	l, err := c.lookup(*native)
	if err != nil {
		return err
	}
	password, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && password == "" {
		return fmt.Errorf("read password: %w", err)
	}
	password = strings.TrimRight(password, "\r\n")

	v := auth.NewVerifier(l)
	v.NoSystemFallback = *noFallback
	if err := v.Verify(c.fs.Arg(0), password); err != nil {
		logger.Warn("verify %s: %v", c.fs.Arg(0), err)
		return errors.New(auth.HumanAuthError(err))
	}
	fmt.Println("OK")
	return nil
}

func runConfig(args []string) error {
	c := newCommand("config")
	if err := c.parse(args, 0, ""); err != nil {
		return err
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}
	b, err := cfg.Marshal()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}
