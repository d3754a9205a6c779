package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"kycflow/internal/app"
	"kycflow/internal/domain"
	"kycflow/internal/flow"
	"kycflow/internal/platform/config"
	"kycflow/internal/report"
)

var errAborted = errors.New("verification aborted")

type runOptions struct {
	userID            string
	userFrames        string
	environmentFrames string
	country           string
	documentType      string
	outDir            string
	format            string
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Drive one verification flow from the terminal",
		Long: "Runs a verification flow against the configured verification service, " +
			"taking frames from still-image directories. Selections and retries are " +
			"prompted on stdin unless given as flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.userID) == "" {
				return fmt.Errorf("--user is required")
			}
			if opts.format != "json" && opts.format != "pdf" {
				return fmt.Errorf("unsupported report format %q", opts.format)
			}
			a, err := ctx.load(cmd.Context(), cmd.ErrOrStderr(), func(cfg *config.Config) {
				if opts.userFrames != "" || opts.environmentFrames != "" {
					cfg.Camera = config.Camera{UserDir: opts.userFrames, EnvironmentDir: opts.environmentFrames}
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()
			return runFlow(cmd.Context(), a, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "User being verified")
	cmd.Flags().StringVar(&opts.userFrames, "user-frames", "", "Directory of selfie frames")
	cmd.Flags().StringVar(&opts.environmentFrames, "environment-frames", "", "Directory of document frames")
	cmd.Flags().StringVar(&opts.country, "country", "", "Country code to select without prompting")
	cmd.Flags().StringVar(&opts.documentType, "document-type", "", "Document type to select without prompting")
	cmd.Flags().StringVar(&opts.outDir, "out", ".", "Directory the report is written to")
	cmd.Flags().StringVar(&opts.format, "format", "json", "Report format (json, pdf)")
	return cmd
}

func runFlow(ctx context.Context, a *app.App, opts runOptions, in io.Reader, out io.Writer) error {
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = a.Worker.Run(workerCtx)
	}()
	defer func() {
		stopWorker()
		<-workerDone
	}()

	seq, err := a.Flows.Start(ctx, opts.userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Verification %s started\n", seq.ID())

	p := &prompter{scanner: bufio.NewScanner(in), out: out, colorize: shouldColorize(out)}
	preset := map[domain.StepKind]string{
		domain.StepCountrySelection:  opts.country,
		domain.StepDocumentSelection: opts.documentType,
	}

	for {
		if err := ctx.Err(); err != nil {
			_ = a.Flows.Close(context.WithoutCancel(ctx), seq.ID())
			return err
		}
		view := seq.View()
		if view.Closed {
			return flow.ErrFlowClosed
		}
		fmt.Fprintf(out, "\n[%d/%d] %s\n", view.CurrentIndex+1, len(view.Steps), view.CurrentStep)

		switch view.CurrentStep {
		case domain.StepCountrySelection, domain.StepDocumentSelection:
			err = selectOption(ctx, seq, view, p, preset)
			preset[view.CurrentStep] = ""
		case domain.StepComplete:
			return finishFlow(ctx, a, seq, opts, out)
		default:
			err = captureStep(ctx, seq, view, p)
		}
		if errors.Is(err, errAborted) {
			_ = a.Flows.Close(ctx, seq.ID())
			return err
		}
		if err != nil && !errors.Is(err, flow.ErrInvalidSelection) {
			return err
		}
		if err != nil {
			fmt.Fprintf(out, "  %v\n", err)
		}
	}
}

func selectOption(ctx context.Context, seq *flow.Sequencer, view flow.View, p *prompter, preset map[domain.StepKind]string) error {
	choice := preset[view.CurrentStep]
	if view.CurrentStep == domain.StepCountrySelection {
		if choice == "" {
			rows := make([][]string, 0, len(view.Countries))
			for _, c := range view.Countries {
				rows = append(rows, []string{c.Code, c.Name})
			}
			fmt.Fprintln(p.out, renderTable([]string{"Code", "Country"}, rows))
			var err error
			if choice, err = p.ask("Country code"); err != nil {
				return err
			}
		}
		return seq.SelectCountry(ctx, choice)
	}

	if choice == "" {
		rows := make([][]string, 0, len(view.DocumentTypes))
		for _, d := range view.DocumentTypes {
			rows = append(rows, []string{d.Value, d.Label})
		}
		fmt.Fprintln(p.out, renderTable([]string{"Type", "Label"}, rows))
		var err error
		if choice, err = p.ask("Document type"); err != nil {
			return err
		}
	}
	return seq.SelectDocumentType(ctx, choice)
}

func captureStep(ctx context.Context, seq *flow.Sequencer, view flow.View, p *prompter) error {
	cv := view.Capture
	if cv == nil {
		return fmt.Errorf("step %s has no capture view", view.CurrentStep)
	}
	fmt.Fprintf(p.out, "  %s: %s\n", cv.Title, cv.Instruction)

	if cv.Error != nil {
		fmt.Fprintf(p.out, "  %s\n  %s\n", paint(cv.Error.Title, ansiRed, p.colorize), cv.Error.Message)
		for _, tip := range cv.Error.Tips {
			fmt.Fprintf(p.out, "   - %s\n", tip)
		}
		if _, err := p.ask(cv.Error.RetryLabel + " [Enter]"); err != nil {
			return err
		}
		return seq.Retry(ctx)
	}
	if !cv.CaptureEnabled {
		return fmt.Errorf("camera not ready (%s)", cv.State)
	}

	if _, err := p.ask(cv.CaptureLabel + " [Enter]"); err != nil {
		return err
	}
	attempt, err := seq.Capture(ctx)
	if err != nil {
		return err
	}
	outcome, _, err := attempt.Wait(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "  result: %s\n", paint(string(outcome.Status), outcomeColor(outcome.Status), p.colorize))
	return nil
}

func finishFlow(ctx context.Context, a *app.App, seq *flow.Sequencer, opts runOptions, out io.Writer) error {
	r, err := seq.Report(ctx)
	if err != nil {
		return err
	}
	export, name := report.Export, report.FileName(r.VerificationID)
	if opts.format == "pdf" {
		export, name = report.ExportPDF, report.PDFFileName(r.VerificationID)
	}
	data, err := export(r)
	if err != nil {
		return err
	}
	path := filepath.Join(opts.outDir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintln(out, renderTable([]string{"Document", "Accepted"}, [][]string{
		{"Document front", yesNo(r.Documents.DocumentFront)},
		{"Document back", yesNo(r.Documents.DocumentBack)},
		{"Selfie", yesNo(r.Documents.Selfie)},
		{"MRZ scan", yesNo(r.Documents.MRZScan)},
	}))
	fmt.Fprintf(out, "Report written to %s\n", path)
	return a.Flows.Close(ctx, seq.ID())
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

type prompter struct {
	scanner  *bufio.Scanner
	out      io.Writer
	colorize bool
}

// ask prints label and reads one line. End of input aborts the flow.
func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", errAborted
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}
