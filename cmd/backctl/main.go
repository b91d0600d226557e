package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

const defaultServer = "http://localhost:5000"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "submit":
		runSubmit(args)
	case "list":
		runList(args)
	case "download":
		runDownload(args)
	case "delete":
		runDelete(args)
	case "health":
		runHealth(args)
	default:
		usage()
		os.Exit(1)
	}
}

func runSubmit(args []string) {
	fs := newFlagSet("submit")
	file := fs.String("file", "", "configuration JSON file")
	fs.ParseArgs(args)
	if *file == "" {
		fail("configuration file required (--file)")
	}
	// #nosec G304 -- CLI explicitly reads local files provided by the operator.
	payload, err := os.ReadFile(*file)
	check(err)

	client := newClient(*fs.server, *fs.user)
	rec, err := client.Submit(payload)
	check(err)
	fmt.Println(rec.ArtifactID)
}

func runList(args []string) {
	fs := newFlagSet("list")
	fs.ParseArgs(args)

	client := newClient(*fs.server, *fs.user)
	records, err := client.List()
	check(err)
	for _, rec := range records {
		fmt.Printf("%s\t%s\texpires %s\n", rec.ArtifactID, rec.FileName, rec.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
}

func runDownload(args []string) {
	fs := newFlagSet("download")
	out := fs.String("out", "", "output file (default: stored file name)")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("artifact id required")
	}

	client := newClient(*fs.server, *fs.user)
	path, err := client.Download(fs.Arg(0), *out)
	check(err)
	fmt.Println(path)
}

func runDelete(args []string) {
	fs := newFlagSet("delete")
	fs.ParseArgs(args)
	if fs.NArg() < 1 {
		fail("artifact id required")
	}

	client := newClient(*fs.server, *fs.user)
	check(client.Delete(fs.Arg(0)))
}

func runHealth(args []string) {
	fs := newFlagSet("health")
	fs.ParseArgs(args)

	client := newClient(*fs.server, *fs.user)
	status, err := client.Health()
	check(err)
	fmt.Println(status)
}

type flagSet struct {
	*flag.FlagSet
	server *string
	user   *string
}

func newFlagSet(name string) *flagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	server := fs.String("server", envOr("BACK_SERVER_URL", defaultServer), "server base url")
	user := fs.String("user", envOr("BACK_USER_ID", ""), "owner id sent as X-User-ID")
	return &flagSet{FlagSet: fs, server: server, user: user}
}

func (fs *flagSet) ParseArgs(args []string) {
	if err := fs.Parse(reorderArgs(args)); err != nil {
		fail(err.Error())
	}
}

// reorderArgs moves flag arguments ahead of positionals so subcommands
// accept trailing flags ("download <id> --out file.apk"); stdlib flag stops
// parsing at the first positional. Every flag here takes a value, so a flag
// not using the =form consumes the next argument.
func reorderArgs(args []string) []string {
	flags := make([]string, 0, len(args))
	positional := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "-") {
			flags = append(flags, arg)
			if !strings.Contains(arg, "=") && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
			continue
		}
		positional = append(positional, arg)
	}
	return append(flags, positional...)
}

func usage() {
	fmt.Print(`backctl - APK backend CLI

Usage:
  backctl submit --file config.json
  backctl list
  backctl download <artifact_id> [--out file.apk]
  backctl delete <artifact_id>
  backctl health

Global flags:
  --server  Server base URL (default from BACK_SERVER_URL)
  --user    Owner id sent as X-User-ID (default from BACK_USER_ID)
`)
}

func envOr(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func check(err error) {
	if err != nil {
		fail(err.Error())
	}
}

func fail(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
