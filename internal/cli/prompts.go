package cli

import (
	"fmt"
	"strings"

	"github.com/AlecAivazis/survey/v2"

	"github.com/dyike/StockPilot/consts"
	"github.com/dyike/StockPilot/internal/graph"
)

// PromptForTicker prompts the user to enter a stock ticker symbol
func PromptForTicker() (string, error) {
	var ticker string
	prompt := &survey.Input{
		Message: "Enter the stock ticker (e.g. TSLA, AAPL, 2330.TW):",
		Help:    "Any symbol Yahoo Finance understands, including exchange suffixes",
	}

	err := survey.AskOne(prompt, &ticker, survey.WithValidator(func(val interface{}) error {
		str, _ := val.(string)
		if strings.TrimSpace(str) == "" {
			return fmt.Errorf("ticker cannot be empty")
		}
		if strings.ContainsAny(str, " /\\") {
			return fmt.Errorf("ticker cannot contain spaces or slashes")
		}
		return nil
	}))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(strings.ToUpper(ticker)), nil
}

func PromptForQuestion() (string, error) {
	var question string
	prompt := &survey.Input{
		Message: "What do you want to know?",
		Default: consts.DefaultQuestion,
	}
	if err := survey.AskOne(prompt, &question); err != nil {
		return "", err
	}
	return strings.TrimSpace(question), nil
}

func PromptForMode(current graph.Mode) (graph.Mode, error) {
	options := []string{
		"single - fetch all data once, then write the report",
		"iterative - let the model decide which data to fetch",
	}
	def := options[0]
	if current == graph.ModeIterative {
		def = options[1]
	}

	var selected string
	prompt := &survey.Select{
		Message: "Analysis mode:",
		Options: options,
		Default: def,
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return graph.ParseMode(strings.SplitN(selected, " ", 2)[0])
}

func PromptForSave() (bool, error) {
	save := false
	prompt := &survey.Confirm{
		Message: "Save this report to the results directory?",
		Default: false,
	}
	err := survey.AskOne(prompt, &save)
	return save, err
}

// PromptForRestartOrExit asks whether to analyse another stock.
func PromptForRestartOrExit() (bool, error) {
	var choice string
	prompt := &survey.Select{
		Message: "What next?",
		Options: []string{"Analyse another stock", "Exit"},
		Default: "Analyse another stock",
	}
	if err := survey.AskOne(prompt, &choice); err != nil {
		return false, err
	}
	return choice == "Analyse another stock", nil
}
