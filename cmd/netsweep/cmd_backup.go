package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/HerbHall/netsweep/internal/backup"
	"github.com/HerbHall/netsweep/internal/server"
)

// runBackup archives the configured database and config file.
func runBackup(args []string) int {
	fs := flag.NewFlagSet("backup", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	output := fs.String("o", "", "archive path (default netsweep-backup-<timestamp>.tar.gz)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: %v\n", err)
		return 1
	}
	archive := *output
	if archive == "" {
		archive = "netsweep-backup-" + time.Now().UTC().Format("20060102T150405Z") + ".tar.gz"
	}

	if err := backup.Backup(context.Background(), v.GetString("database.path"), v.ConfigFileUsed(), archive); err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: backup failed: %v\n", err)
		return 1
	}
	fmt.Printf("backup written to %s\n", archive)
	return 0
}

// runRestore unpacks an archive into the directory holding the configured
// database. The server must be stopped first.
func runRestore(args []string) int {
	fs := flag.NewFlagSet("restore", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	dir := fs.String("dir", "", "target directory (default: directory of database.path)")
	force := fs.Bool("force", false, "overwrite existing files")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: netsweep restore [-config path] [-dir path] [-force] ARCHIVE")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	target := *dir
	if target == "" {
		v, err := server.LoadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "netsweep: %v\n", err)
			return 1
		}
		target = filepath.Dir(v.GetString("database.path"))
	}

	if err := backup.Restore(context.Background(), fs.Arg(0), target, *force); err != nil {
		fmt.Fprintf(os.Stderr, "netsweep: restore failed: %v\n", err)
		return 1
	}
	fmt.Printf("restored %s into %s\n", fs.Arg(0), target)
	return 0
}
