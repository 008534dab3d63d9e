package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/diary"
	"github.com/aretw0/diary/pkg/core"
)

var (
	listJSON    bool
	listSearch  string
	deleteForce bool
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage diary notes",
}

// findNote fetches the user's notes and returns the one with id.
func findNote(ctx context.Context, client *diary.Client, id string) (core.Note, error) {
	notes, err := client.Notes.ListNotes(ctx, client.Session.UserID())
	if err != nil {
		return core.Note{}, err
	}
	for _, n := range notes {
		if n.ID == id {
			return n, nil
		}
	}
	return core.Note{}, fmt.Errorf("no note with id %s: %w", id, core.ErrNotFound)
}

// listNotes prints the user's notes newest first, as a table or as JSON.
func listNotes(ctx context.Context, client *diary.Client, out io.Writer, query string, asJSON bool) error {
	notes, err := client.Notes.ListNotes(ctx, client.Session.UserID())
	if err != nil {
		return err
	}
	notes = client.Notes.Search(notes, query)

	if asJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(notes)
	}

	if len(notes) == 0 {
		fmt.Fprintln(out, "No notes found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, n := range notes {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.NoteDate, n.ID, n.Title)
	}
	return w.Flush()
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()
		requireUser(client)

		if err := listNotes(ctx, client, cmd.OutOrStdout(), listSearch, listJSON); err != nil {
			fatal("Failed to list notes", err)
		}
	},
}

var notesReadCmd = &cobra.Command{
	Use:   "read [id]",
	Short: "Print a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()
		requireUser(client)

		n, err := findNote(ctx, client, args[0])
		if err != nil {
			fatal("Failed to read note", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n\n%s\n", n.Title, n.NoteDate, n.Description)
	},
}

// noteFlags is what create and edit read from their flags. A nil field was
// not given on the command line.
type noteFlags struct {
	Title       *string
	Date        *string
	Description *string
}

func addNoteFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("title", "t", "", "Title of your day")
	cmd.Flags().StringP("date", "d", "", "Date as YYYY-MM-DD (default: today)")
	cmd.Flags().StringP("description", "m", "", "Your story, thoughts or memories")
}

// noteFlagsOf collects the note flags that were set on cmd.
func noteFlagsOf(cmd *cobra.Command) noteFlags {
	var f noteFlags
	for name, dst := range map[string]**string{"title": &f.Title, "date": &f.Date, "description": &f.Description} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, _ := cmd.Flags().GetString(name)
		*dst = &v
	}
	return f
}

func valueOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

// createNote stores a note from the flags; the date defaults to today.
func createNote(ctx context.Context, client *diary.Client, f noteFlags, today core.Date) (core.Note, error) {
	in, err := core.ParseNoteInput(valueOr(f.Title, ""), valueOr(f.Date, today.String()), valueOr(f.Description, ""))
	if err != nil {
		return core.Note{}, err
	}
	return client.Notes.CreateNote(ctx, client.Session.UserID(), in)
}

var notesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Write a new note",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()

		created, err := createNote(ctx, client, noteFlagsOf(cmd), core.DateOf(time.Now()))
		if err != nil {
			fatal("Failed to create note", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note created successfully! (%s)\n", created.ID)
	},
}

// editNote overwrites the fields given in f and keeps the others.
func editNote(ctx context.Context, client *diary.Client, id string, f noteFlags) (core.Note, error) {
	current, err := findNote(ctx, client, id)
	if err != nil {
		return core.Note{}, err
	}
	in, err := core.ParseNoteInput(
		valueOr(f.Title, current.Title),
		valueOr(f.Date, current.NoteDate.String()),
		valueOr(f.Description, current.Description),
	)
	if err != nil {
		return core.Note{}, err
	}
	return client.Notes.UpdateNote(ctx, current.ID, in)
}

var notesEditCmd = &cobra.Command{
	Use:   "edit [id]",
	Short: "Update the title, date or description of a note",
	Long:  `Edit overwrites the fields given as flags and keeps the others.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()
		requireUser(client)

		updated, err := editNote(ctx, client, args[0], noteFlagsOf(cmd))
		if err != nil {
			fatal("Failed to update note", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note updated: %s\n", updated.ID)
	},
}

// confirm asks question on prompt and reads a yes or no from in.
func confirm(in io.Reader, prompt io.Writer, question string) bool {
	fmt.Fprintf(prompt, "%s [y/N] ", question)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes"
}

// deleteNote removes the note after confirmation unless yes is set. It
// reports whether the note was deleted.
func deleteNote(ctx context.Context, client *diary.Client, id string, yes bool, in io.Reader, prompt io.Writer) (bool, error) {
	if !yes && !confirm(in, prompt, "Delete this note?") {
		return false, nil
	}
	if err := client.Notes.DeleteNote(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		client := openClient(ctx)
		defer client.Close()
		requireUser(client)

		deleted, err := deleteNote(ctx, client, args[0], deleteForce, cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			fatal("Failed to delete note", err)
		}
		if !deleted {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note deleted: %s\n", args[0])
	},
}

func init() {
	rootCmd.AddCommand(notesCmd)
	notesCmd.AddCommand(notesListCmd, notesReadCmd, notesCreateCmd, notesEditCmd, notesDeleteCmd)

	notesListCmd.Flags().BoolVar(&listJSON, "json", false, "Output in JSON format")
	notesListCmd.Flags().StringVarP(&listSearch, "search", "s", "", "Only notes whose title contains this text")

	addNoteFlags(notesCreateCmd)
	addNoteFlags(notesEditCmd)
	notesCreateCmd.MarkFlagRequired("title")
	notesCreateCmd.MarkFlagRequired("description")

	notesDeleteCmd.Flags().BoolVarP(&deleteForce, "yes", "y", false, "Do not ask for confirmation")
}
