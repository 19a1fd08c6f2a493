// Package archive wraps pg_dump/pg_restore as opaque sub-processes and
// parses their TOC listing format, grounded on the corpus' os/exec
// sub-process wrapper style. The core never links against a dump/restore
// library; it only consumes file listings and exit codes.
package archive

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
)

// Section is a dump/restore section, matching pg_dump's --section values.
type Section string

const (
	SectionPreData  Section = "pre-data"
	SectionData     Section = "data"
	SectionPostData Section = "post-data"
)

// Runner invokes pg_dump/pg_restore. Each call takes the connection string
// (passed as --dbname) and the directory-format archive's path as
// arguments.
type Runner struct {
	DumpBin    string // defaults to "pg_dump"
	RestoreBin string // defaults to "pg_restore"
}

// New returns a Runner using the named binaries, or the defaults found on
// PATH when either is empty.
func New(dumpBin, restoreBin string) *Runner {
	if dumpBin == "" {
		dumpBin = "pg_dump"
	}
	if restoreBin == "" {
		restoreBin = "pg_restore"
	}
	return &Runner{DumpBin: dumpBin, RestoreBin: restoreBin}
}

// Dump runs pg_dump against dsn for the given section, writing a
// directory-format archive to archiveDir.
func (r *Runner) Dump(ctx context.Context, dsn, archiveDir string, section Section) error {
	args := []string{
		"--format=directory",
		"--section=" + string(section),
		"--file=" + archiveDir,
		"--no-owner",
		"--no-privileges",
		"--dbname=" + dsn,
	}
	return r.run(ctx, r.DumpBin, args)
}

// List runs pg_restore -l against archiveDir and parses the TOC entries.
func (r *Runner) List(ctx context.Context, archiveDir string) ([]TOCEntry, error) {
	out, err := r.runCaptured(ctx, r.RestoreBin, []string{"--list", archiveDir})
	if err != nil {
		return nil, err
	}
	return ParseTOC(out)
}

// Restore runs pg_restore against dsn, limited to the entries named in
// useList (pg_restore's --use-list contract: a TOC file, possibly edited
// to comment out unwanted lines with a leading ';').
func (r *Runner) Restore(ctx context.Context, dsn, archiveDir string, useList []byte) error {
	args := []string{
		"--format=directory",
		"--dbname=" + dsn,
		"--no-owner",
		"--no-privileges",
		"--exit-on-error",
	}
	if useList != nil {
		listPath := archiveDir + ".use-list"
		if err := os.WriteFile(listPath, useList, 0o644); err != nil {
			return err
		}
		args = append(args, "--use-list="+listPath)
	}
	args = append(args, archiveDir)
	return r.run(ctx, r.RestoreBin, args)
}

func (r *Runner) run(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, stderr.String())
	}
	return nil
}

func (r *Runner) runCaptured(ctx context.Context, bin string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", bin, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// TOCEntry is one parsed line of a pg_restore -l listing, e.g.
// `3; 2615 16391 SCHEMA - public postgres`.
type TOCEntry struct {
	DumpID          int
	CatalogOID      int64
	ObjectOID       int64
	Kind            string
	Schema          string
	Name            string
	Owner           string
	RestoreListName string
}

var tocLine = regexp.MustCompile(`^(\d+);\s+(\d+)\s+(\d+)\s+(TABLE DATA|SEQUENCE SET|SEQUENCE OWNED BY|FK CONSTRAINT|MATERIALIZED VIEW DATA|MATERIALIZED VIEW|DEFAULT ACL|LARGE OBJECT|BLOB DATA|\S+)\s+(\S+)\s+(.+?)\s+(\S+)$`)

// ParseTOC parses a pg_restore -l listing into entries, skipping header
// comment lines (those starting with ';').
func ParseTOC(out []byte) ([]TOCEntry, error) {
	var entries []TOCEntry
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}
		m := tocLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		dumpID, _ := strconv.Atoi(m[1])
		catOID, _ := strconv.ParseInt(m[2], 10, 64)
		objOID, _ := strconv.ParseInt(m[3], 10, 64)
		entries = append(entries, TOCEntry{
			DumpID:          dumpID,
			CatalogOID:      catOID,
			ObjectOID:       objOID,
			Kind:            m[4],
			Schema:          m[5],
			Name:            m[6],
			Owner:           m[7],
			RestoreListName: m[6],
		})
	}
	return entries, sc.Err()
}

// BuildUseList renders a --use-list file that restores exactly the dump
// IDs in keep, commenting out every other entry from all.
func BuildUseList(all []TOCEntry, keep map[int]bool) []byte {
	var b bytes.Buffer
	for _, e := range all {
		if !keep[e.DumpID] {
			b.WriteString(";")
		}
		fmt.Fprintf(&b, "%d; %d %d %s %s %s %s\n", e.DumpID, e.CatalogOID, e.ObjectOID, e.Kind, e.Schema, e.Name, e.Owner)
	}
	return b.Bytes()
}
