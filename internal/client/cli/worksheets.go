package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/simonexmachina/the-work/internal/client/repositories/worksheets"
	"github.com/simonexmachina/the-work/internal/models"
)

const (
	fieldSituation = "situation"
	fieldPerson    = "person"
)

// worksheetPrompts are asked in order by new and edit.
var worksheetPrompts = []struct {
	key       string
	prompt    string
	multiline bool
}{
	{fieldSituation, "Situation: where and when?", false},
	{fieldPerson, "Who angers, confuses or disappoints you?", false},
	{"statement1", "1. Why? What is it about them?", true},
	{"statement2", "2. How do you want them to change?", true},
	{"statement3", "3. What advice would you offer them?", true},
	{"statement4", "4. What do you need them to think, say, feel or do for you to be happy?", true},
	{"statement5", "5. What do you think of them?", true},
	{"statement6", "6. What do you never want to experience with them again?", true},
	{"turnarounds", "Turnarounds", true},
}

var errMissingID = errors.New("worksheet id required")

func (a *App) ask(prompt string, multiline bool) (string, error) {
	if multiline {
		return getMultiline(a.reader, prompt, a.out)
	}
	return getSimpleText(a.reader, prompt, a.out)
}

// New walks through the worksheet prompts and stores the answers.
func (a *App) New(ctx context.Context) error {
	fields := make(map[string]any)
	for _, p := range worksheetPrompts {
		v, err := a.ask(p.prompt, p.multiline)
		if err != nil {
			return err
		}
		if v != "" {
			fields[p.key] = v
		}
	}

	w, err := a.worksheets.Create(ctx, fields)
	if err != nil {
		a.println("Error:", err)
		return err
	}
	a.println("Saved worksheet", w.ID)
	return nil
}

func (a *App) List(ctx context.Context) error {
	ws, err := a.worksheets.List(ctx)
	if err != nil {
		a.println("Error:", err)
		return err
	}
	if len(ws) == 0 {
		a.println("No worksheets yet. Type 'new' to start one.")
		return nil
	}
	for i := range ws {
		a.println(summary(&ws[i]))
	}
	return nil
}

func (a *App) Show(ctx context.Context, args []string) error {
	w, err := a.lookup(ctx, args, "Enter worksheet id to show")
	if err != nil {
		return err
	}

	a.printf("id:      %s\nupdated: %s\n", w.ID, w.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	if w.SyncedAt == nil {
		a.println("synced:  not yet")
	} else {
		a.printf("synced:  %s\n", w.SyncedAt.Local().Format("2006-01-02 15:04:05"))
	}

	known := make(map[string]struct{}, len(worksheetPrompts))
	for _, p := range worksheetPrompts {
		known[p.key] = struct{}{}
		if v := w.Field(p.key); v != "" {
			a.printf("\n%s\n%s\n", p.prompt, v)
		}
	}

	extra := make([]string, 0)
	for k := range w.Fields {
		if _, ok := known[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		a.printf("%s: %s\n", k, w.Field(k))
	}
	return nil
}

// Edit re-asks every prompt. An empty answer keeps the stored value.
func (a *App) Edit(ctx context.Context, args []string) error {
	w, err := a.lookup(ctx, args, "Enter worksheet id to edit")
	if err != nil {
		return err
	}

	changes := make(map[string]any)
	for _, p := range worksheetPrompts {
		prompt := p.prompt
		if cur := w.Field(p.key); cur != "" {
			prompt = fmt.Sprintf("%s [%s]", prompt, firstLine(cur))
		}
		v, err := a.ask(prompt, p.multiline)
		if err != nil {
			return err
		}
		if v != "" && v != w.Field(p.key) {
			changes[p.key] = v
		}
	}
	for k, v := range getFields(a.reader, a.out) {
		changes[k] = v
	}

	if len(changes) == 0 {
		a.println("Nothing changed")
		return nil
	}
	if _, err := a.worksheets.Update(ctx, w.ID, changes); err != nil {
		a.println("Error:", err)
		return err
	}
	a.println("Updated worksheet", w.ID)
	return nil
}

func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.idArg(args, "Enter worksheet id to delete")
	if err != nil {
		return err
	}
	if err := a.worksheets.Delete(ctx, id); err != nil {
		a.println("Error:", err)
		return err
	}
	a.println("Deleted worksheet", id)
	return nil
}

func (a *App) idArg(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	id, err := getSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return "", err
	}
	if id == "" {
		a.println("Error:", errMissingID)
		return "", errMissingID
	}
	return id, nil
}

func (a *App) lookup(ctx context.Context, args []string, prompt string) (*models.Worksheet, error) {
	id, err := a.idArg(args, prompt)
	if err != nil {
		return nil, err
	}
	w, err := a.worksheets.Get(ctx, id)
	if err != nil {
		if errors.Is(err, worksheets.ErrNotFound) {
			a.println("No worksheet with id", id)
		} else {
			a.println("Error:", err)
		}
		return nil, err
	}
	return w, nil
}

func summary(w *models.Worksheet) string {
	title := w.Field(fieldPerson)
	if s := w.Field(fieldSituation); s != "" {
		if title != "" {
			title += ": "
		}
		title += firstLine(s)
	}
	if title == "" {
		title = "(untitled)"
	}
	mark := " "
	if w.SyncedAt == nil {
		mark = "*"
	}
	return fmt.Sprintf("%s %s  %s  %s", mark, w.ID, w.UpdatedAt.Local().Format("2006-01-02 15:04"), title)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	const maxTitle = 40
	if r := []rune(line); len(r) > maxTitle {
		return string(r[:maxTitle]) + "…"
	}
	return line
}
