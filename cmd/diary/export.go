package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/diary/pkg/core"
)

var exportDir string

// frontmatter is the YAML header of an exported note.
type frontmatter struct {
	ID        string    `yaml:"id"`
	Title     string    `yaml:"title"`
	Date      string    `yaml:"date"`
	CreatedAt time.Time `yaml:"created_at,omitempty"`
}

// slug lowercases title and joins its words with dashes.
func slug(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// exportFileName is unique per note: date, title slug and the id prefix.
func exportFileName(n core.Note) string {
	name := n.NoteDate.String()
	if s := slug(n.Title); s != "" {
		name += "-" + s
	}
	id := n.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "-" + id + ".md"
}

// renderMarkdown writes n as a Markdown document with YAML frontmatter.
func renderMarkdown(n core.Note) ([]byte, error) {
	header, err := yaml.Marshal(frontmatter{
		ID:        n.ID,
		Title:     n.Title,
		Date:      n.NoteDate.String(),
		CreatedAt: n.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimRight(n.Description, "\n"))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// exportNotes writes one file per note into dir and returns their paths.
func exportNotes(dir string, notes []core.Note) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	paths := make([]string, 0, len(notes))
	for _, n := range notes {
		data, err := renderMarkdown(n)
		if err != nil {
			return paths, err
		}
		path := filepath.Join(dir, exportFileName(n))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

var notesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export notes as Markdown files with YAML frontmatter",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()
		requireUser(client)

		notes, err := client.Notes.ListNotes(ctx, client.Session.UserID())
		if err != nil {
			fatal("Failed to list notes", err)
		}
		paths, err := exportNotes(exportDir, notes)
		if err != nil {
			fatal("Failed to export notes", err)
		}
		fmt.Printf("Exported %d notes to %s\n", len(paths), exportDir)
	},
}

func init() {
	notesCmd.AddCommand(notesExportCmd)
	notesExportCmd.Flags().StringVar(&exportDir, "dir", "diary-export", "Destination directory")
}
