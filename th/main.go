// Command th reports on a brokerage trade history: closed lots, asset
// valuation, sectors and monthly cash reconciliation.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/etnz/tradehistory/cmd"
	"github.com/google/subcommands"
	"github.com/posener/complete/v2"
	"github.com/posener/complete/v2/predict"
)

func main() {
	name := path.Base(os.Args[0])
	completion().Complete(name)

	commander := subcommands.NewCommander(flag.CommandLine, name)
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	cmd.Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// predictors completes the values of flags with a known vocabulary.
var predictors = map[string]complete.Predictor{
	"kind":   predict.Set{"events", "lines", "prices", "rates", "instruments"},
	"group":  predict.Set{"total", "account", "institution"},
	"method": predict.Set{"fifo", "average"},
	"sort":   predict.Set{"trade_date", "account_id", "institution", "symbol", "quantity", "price", "gross_amount", "realized_pl"},
	"type":   predict.Set{"trade", "transfer", "dividend", "interest", "fee", "deposit", "withdrawal", "tax", "other"},
	"db":     predict.Files("*.sqlite"),
}

// completion describes the subcommands and their flags for shell completion.
func completion() *complete.Command {
	root := &complete.Command{
		Sub:   map[string]*complete.Command{},
		Flags: flags(flag.CommandLine),
	}
	for _, group := range cmd.Groups {
		for _, c := range cmd.Commands[group] {
			fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
			c.SetFlags(fs)
			sub := &complete.Command{Flags: flags(fs)}
			if c.Name() == "import" {
				sub.Args = predict.Files("*.jsonl")
			}
			root.Sub[c.Name()] = sub
		}
	}
	return root
}

func flags(fs *flag.FlagSet) map[string]complete.Predictor {
	out := make(map[string]complete.Predictor)
	fs.VisitAll(func(f *flag.Flag) {
		if b, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && b.IsBoolFlag() {
			out[f.Name] = predict.Nothing
			return
		}
		if p, ok := predictors[f.Name]; ok {
			out[f.Name] = p
			return
		}
		out[f.Name] = predict.Something
	})
	return out
}
