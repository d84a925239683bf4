package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/etnz/tradehistory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// scriptedChat replays responses and records what it was sent.
type scriptedChat struct {
	responses []*genai.Content
	sent      [][]*genai.Part
}

func (c *scriptedChat) Send(_ context.Context, parts ...*genai.Part) (*genai.GenerateContentResponse, error) {
	c.sent = append(c.sent, parts)
	if len(c.responses) == 0 {
		return nil, errors.New("no more responses")
	}
	content := c.responses[0]
	c.responses = c.responses[1:]
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: content}}}, nil
}

func text(s string) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{Text: s}}}
}

func call(name string, args map[string]any) *genai.Content {
	return &genai.Content{Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "1", Name: name, Args: args}}}}
}

func testIndex() *tradehistory.SymbolIndex {
	return tradehistory.NewSymbolIndex(tradehistory.NewResolver(),
		[]tradehistory.Override{{Symbol: "CSU", MarketSymbol: "CSU.TO", Notes: "software roll-up", Active: true}},
		[]tradehistory.ProviderMetadata{{Symbol: "CSU", Provider: "yahoo_search", DisplayName: "Constellation Software", Exchange: "Toronto"}},
		nil)
}

func TestSectorClassifier(t *testing.T) {
	e := NewSectorExpert("test-model", SymbolLookup(testIndex()))
	c := &scriptedChat{responses: []*genai.Content{
		call("lookup_symbol", map[string]any{"symbol": "csu"}),
		text("```json\n{\"sector\": \"Technology\", \"industry\": \"Software - Application\", \"name\": \"Constellation Software Inc.\"}\n```"),
	}}
	e.chat = c

	meta, found, err := SectorClassifier{Expert: e}.FetchMetadata(context.Background(), "csu.to")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tradehistory.ProviderMetadata{
		Provider:     Provider,
		MarketSymbol: "CSU.TO",
		DisplayName:  "Constellation Software Inc.",
		Sector:       "Technology",
		Industry:     "Software - Application",
		SourceJSON:   "```json\n{\"sector\": \"Technology\", \"industry\": \"Software - Application\", \"name\": \"Constellation Software Inc.\"}\n```",
	}, meta)

	require.Len(t, c.sent, 2)
	resp := c.sent[1][0].FunctionResponse
	require.NotNil(t, resp)
	assert.Equal(t, "lookup_symbol", resp.Name)
	assert.Equal(t, "CSU.TO", resp.Response["market_symbol"])
	assert.Equal(t, "Constellation Software", resp.Response["name"])
	assert.Equal(t, "software roll-up", resp.Response["notes"])
}

func TestSectorClassifierUnknown(t *testing.T) {
	e := NewSectorExpert("test-model")
	e.chat = &scriptedChat{responses: []*genai.Content{text(`{"sector": "Unknown"}`), text("I am not sure.")}}
	cls := SectorClassifier{Expert: e}

	_, found, err := cls.FetchMetadata(context.Background(), "ZZZ")
	require.NoError(t, err)
	assert.False(t, found)

	_, _, err = cls.FetchMetadata(context.Background(), "ZZZ")
	assert.Error(t, err, "an answer that is not JSON is an error")
}

func TestExpertErrors(t *testing.T) {
	e := &Expert{Name: "Idle"}
	_, err := e.Ask(context.Background(), &genai.Part{Text: "hi"})
	assert.Error(t, err, "not started")

	e.chat = &scriptedChat{responses: []*genai.Content{call("anything", nil)}}
	_, err = e.Ask(context.Background(), &genai.Part{Text: "hi"})
	assert.ErrorContains(t, err, "function calls")

	lib := NewLibrary([]Function{SymbolLookup(testIndex())})
	resp := lib(context.Background(), &genai.FunctionCall{ID: "7", Name: "missing"})
	assert.Equal(t, "unknown function missing", resp.Response["error"])
	resp = lib(context.Background(), &genai.FunctionCall{ID: "8", Name: "lookup_symbol", Args: map[string]any{"symbol": 3}})
	assert.Contains(t, resp.Response["error"], "not a string")
}
