package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"docqa/internal/domain"
	"docqa/internal/service"
)

type fakePort struct {
	res *service.ChatResult
	err error
}

func (f *fakePort) Chat(context.Context, string, int) (*service.ChatResult, error) {
	return f.res, f.err
}

func sized(t *testing.T, m Model) Model {
	t.Helper()
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(Model)
}

func TestBestSentence(t *testing.T) {
	sentences := []string{"Cats sleep a lot.", "Go has goroutines and channels.", "Nothing here."}
	require.Equal(t, 1, bestSentence(sentences, toTokenSet("how do goroutines work")))
	require.Equal(t, 0, bestSentence(sentences, toTokenSet("unrelated")))
}

func TestEnterAsksAndShowsAnswer(t *testing.T) {
	port := &fakePort{res: &service.ChatResult{
		Answer: "Goroutines are cheap [1].",
		Citations: []domain.Citation{
			{ID: 11, DocID: "go.md", Text: "Goroutines are lightweight threads."},
			{ID: 4, DocID: "rt.md", Text: "The scheduler multiplexes goroutines."},
		},
		Scored: []domain.ScoredChunk{{ID: 11, Score: 0.9}, {ID: 4, Score: 0.7}},
	}}
	m := sized(t, New(context.Background(), port, 3, "2 entries"))
	m.input.SetValue("goroutines")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(Model)
	require.True(t, m.busy)
	require.NotNil(t, cmd)

	next, _ = m.Update(cmd())
	m = next.(Model)
	require.False(t, m.busy)
	require.Equal(t, 2, m.sourceCount())
	require.Contains(t, m.render(), "Goroutines are cheap [1].")
	require.Contains(t, m.render(), "> [1] go.md #11")
	require.Contains(t, m.render(), "lightweight")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m = next.(Model)
	require.Equal(t, 1, m.cursor)
	require.Contains(t, m.render(), "> [2] rt.md #4")
	require.Contains(t, m.render(), "multiplexes")
	require.NotContains(t, m.render(), "lightweight")

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 0, next.(Model).cursor)
}

func TestAnswerErrorShownInStatus(t *testing.T) {
	m := sized(t, New(context.Background(), &fakePort{err: errors.New("boom")}, 3, ""))
	next, _ := m.Update(answerMsg{query: "q", err: errors.New("boom")})
	m = next.(Model)
	require.Contains(t, m.status, "boom")
	require.Equal(t, "No answer yet.", m.render())
}
