package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/etnz/tradehistory"
	"google.golang.org/genai"
)

// Provider names the metadata a SectorClassifier produces.
const Provider = "gemini"

// Sectors is the vocabulary the classifier answers with. It matches the
// sector names of the market data providers.
var Sectors = []string{
	"Basic Materials",
	"Communication Services",
	"Consumer Cyclical",
	"Consumer Defensive",
	"Energy",
	"Financial Services",
	"Healthcare",
	"Industrials",
	"Real Estate",
	"Technology",
	"Utilities",
}

// SymbolLookup lets an expert read what the catalog knows about a symbol.
func SymbolLookup(idx *tradehistory.SymbolIndex) *Func {
	const name = "lookup_symbol"
	return &Func{
		Decl: &genai.FunctionDeclaration{
			Name:        name,
			Description: "Returns what the local catalog knows about a ticker: its market symbol, provider name, exchange, asset type and any user notes.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"symbol": {Type: genai.TypeString, Description: "The ticker as written in the ledger or its market symbol."},
				},
				Required: []string{"symbol"},
			},
			Response: &genai.Schema{Type: genai.TypeObject, Description: "The known facts, empty fields are unknown."},
		},
		Func: func(ctx context.Context, id string, args map[string]any) *genai.FunctionResponse {
			symbol, ok := args["symbol"].(string)
			if !ok {
				return errorResponse(id, name, fmt.Errorf("argument 'symbol' is not a string as expected but %T", args["symbol"]))
			}
			f := idx.Facts(symbol)
			res := idx.Resolve(symbol)
			out := map[string]any{
				"symbol":        res.Symbol,
				"market_symbol": res.MarketSymbol,
			}
			if f.Provider != nil {
				out["name"] = f.Provider.DisplayName
				out["exchange"] = f.Provider.Exchange
				out["quote_type"] = f.Provider.QuoteType
			}
			if f.Instrument != nil {
				out["asset_type"] = f.Instrument.AssetType
				if f.Instrument.Exchange != "" {
					out["exchange"] = f.Instrument.Exchange
				}
			}
			if f.Override != nil && f.Override.Notes != "" {
				out["notes"] = f.Override.Notes
			}
			return &genai.FunctionResponse{ID: id, Name: name, Response: out}
		},
	}
}

// NewSectorExpert returns the expert behind a SectorClassifier. functions
// are offered to it as tools.
func NewSectorExpert(model string, functions ...Function) *Expert {
	e := &Expert{
		Name:        "SectorAnalyst",
		Description: "Classifies listed instruments into market sectors.",
		ModelName:   model,
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: `
			You classify listed instruments (stocks, ETFs, trusts) into exactly one of these sectors:
			` + strings.Join(Sectors, ", ") + `.

			Use the tools to learn what the local catalog knows about the ticker before answering.
			Answer with a single JSON object and nothing else:
			{"sector": "...", "industry": "...", "name": "..."}
			Use "Unknown" as sector when you are not confident.
			`}}},
		},
	}
	if len(functions) > 0 {
		e.Config.Tools = []*genai.Tool{{FunctionDeclarations: NewDeclaration(functions)}}
		e.Library = NewLibrary(functions)
	}
	return e
}

// SectorClassifier is a MetadataFetcher backed by an Expert. It is meant as
// the last fetcher of a chain, for symbols no provider knows.
type SectorClassifier struct {
	Expert *Expert
}

var _ tradehistory.MetadataFetcher = SectorClassifier{}

type sectorAnswer struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
	Name     string `json:"name"`
}

// FetchMetadata asks the expert for the sector of marketSymbol. An answer
// outside Sectors is reported as not found.
func (c SectorClassifier) FetchMetadata(ctx context.Context, marketSymbol string) (tradehistory.ProviderMetadata, bool, error) {
	marketSymbol = tradehistory.NormalizeSymbol(marketSymbol)
	content, err := c.Expert.Ask(ctx, &genai.Part{Text: "Classify the instrument " + marketSymbol + "."})
	if err != nil {
		return tradehistory.ProviderMetadata{}, false, err
	}
	text := content.Parts[0].Text
	answer, err := parseAnswer(text)
	if err != nil {
		return tradehistory.ProviderMetadata{}, false, fmt.Errorf("expert %s answered %q: %w", c.Expert.Name, text, err)
	}
	if !slices.Contains(Sectors, answer.Sector) {
		return tradehistory.ProviderMetadata{}, false, nil
	}
	return tradehistory.ProviderMetadata{
		Provider:     Provider,
		MarketSymbol: marketSymbol,
		DisplayName:  answer.Name,
		Sector:       answer.Sector,
		Industry:     answer.Industry,
		SourceJSON:   strings.TrimSpace(text),
	}, true, nil
}

// parseAnswer decodes the JSON object of an answer, tolerating a markdown
// code fence around it.
func parseAnswer(text string) (sectorAnswer, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	var a sectorAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &a); err != nil {
		return sectorAnswer{}, err
	}
	a.Sector = strings.TrimSpace(a.Sector)
	return a, nil
}
