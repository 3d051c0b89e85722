package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/soa-checker/backend/internal/compliance"
	"github.com/soa-checker/backend/internal/rules"
	"github.com/soa-checker/backend/internal/soa"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newValidateCmd(app *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load the rules documents and report what they define",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := app.engine.Info()
			fmt.Fprintf(app.out, "OK: %d devices, %d parameters", info.DeviceCount, info.ParameterCount)
			if info.Version != "" {
				fmt.Fprintf(app.out, " (version %s", info.Version)
				if info.Technology != "" {
					fmt.Fprintf(app.out, ", %s", info.Technology)
				}
				fmt.Fprint(app.out, ")")
			}
			fmt.Fprintln(app.out)

			tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
			for _, key := range app.engine.Keys() {
				d, err := app.engine.Device(key)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "  %s\t%s\t%d levels\t%d parameters\n", key, d.DeviceType(), len(d.Levels()), d.Len())
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(app *cli) *cobra.Command {
	var (
		format string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the merged registry as one rules document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := rules.ParseFormat(format)
			if err != nil {
				return err
			}
			data, err := app.engine.Export(f)
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			if file == "" {
				_, err = app.out.Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", file, err)
			}
			app.logger.Info("rules exported", zap.String("path", file), zap.String("format", string(f)))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", string(rules.FormatJSON), "document format: json, yaml or msgpack")
	cmd.Flags().StringVarP(&file, "file", "f", "", "write to this file instead of stdout")
	return cmd
}

type limitsOutput struct {
	Device   string                      `json:"device" yaml:"device"`
	Tmaxfrac float64                     `json:"tmaxfrac" yaml:"tmaxfrac"`
	Mode     soa.LookupMode              `json:"mode" yaml:"mode"`
	Limits   map[string]soa.LimitSummary `json:"limits" yaml:"limits"`
}

func newLimitsCmd(app *cli) *cobra.Command {
	var (
		device   string
		tmaxfrac string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Show the limits of a device at one tmaxfrac level",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if device == "" || tmaxfrac == "" {
				return errors.New("--device and --tmaxfrac are required")
			}
			level, err := soa.ParseLevel(tmaxfrac)
			if err != nil {
				return err
			}
			d, err := app.engine.Device(device)
			if err != nil {
				return err
			}

			res := limitsOutput{Device: device, Tmaxfrac: level, Mode: app.mode, Limits: d.LimitsAt(level, app.mode)}
			return render(app.out, output, res, func(w io.Writer) error {
				names := make([]string, 0, len(res.Limits))
				for name := range res.Limits {
					names = append(names, name)
				}
				sort.Strings(names)

				tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "PARAMETER\tLIMIT\tUNIT\tPOLARITY\tSEVERITY")
				for _, name := range names {
					l := res.Limits[name]
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, l.Value, l.Unit, l.Polarity, l.Severity)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "device key")
	cmd.Flags().StringVarP(&tmaxfrac, "tmaxfrac", "t", "", "tmaxfrac level")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output: text, json or yaml")
	return cmd
}

func newCheckCmd(app *cli) *cobra.Command {
	var (
		device   string
		tmaxfrac string
		values   map[string]string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check one set of test values against a device",
		Long: "Check one set of test values against a device. The command exits with status 2 " +
			"when a limit is violated.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if device == "" {
				return errors.New("--device is required")
			}

			sc := make(compliance.Scenario, len(values)+1)
			for name, v := range values {
				sc[name] = v
			}
			if tmaxfrac != "" {
				sc[compliance.TmaxfracKey] = tmaxfrac
			}
			coerced, err := compliance.CoerceScenario(sc)
			if err != nil {
				return err
			}

			res, err := app.checker().Check(device, coerced)
			if err != nil {
				return err
			}
			if err := render(app.out, output, res, func(w io.Writer) error {
				return printResult(w, res)
			}); err != nil {
				return err
			}
			if !res.Compliant {
				return errNotCompliant
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "device key")
	cmd.Flags().StringVarP(&tmaxfrac, "tmaxfrac", "t", "", "tmaxfrac level")
	cmd.Flags().StringToStringVar(&values, "value", nil, "test value as name=value, repeatable")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output: text, json or yaml")
	return cmd
}

func printResult(w io.Writer, res *compliance.Result) error {
	if res.Compliant {
		fmt.Fprintf(w, "COMPLIANT: %s at tmaxfrac %s\n", res.Device, soa.FormatNumber(res.Tmaxfrac))
	} else {
		fmt.Fprintf(w, "NOT COMPLIANT: %s at tmaxfrac %s\n", res.Device, soa.FormatNumber(res.Tmaxfrac))
	}
	for _, v := range res.Violations {
		fmt.Fprintf(w, "  - %s\n", v)
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(w, "  limit unknown for: %v\n", res.Skipped)
	}
	return nil
}

func newBatchCmd(app *cli) *cobra.Command {
	var (
		device    string
		scenarios string
		report    string
		output    string
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Check every scenario of a JSON, YAML, CSV or XLSX file against a device",
		Long: "Check every scenario of a scenario file against a device. The command exits with " +
			"status 2 when any scenario fails.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateOutput(output); err != nil {
				return err
			}
			if device == "" || scenarios == "" {
				return errors.New("--device and --scenarios are required")
			}

			parsed, err := readScenarioFile(scenarios)
			if err != nil {
				return err
			}
			rep, err := compliance.NewBatch(app.checker()).Run(device, parsed)
			if err != nil {
				return err
			}
			app.logger.Info("batch finished",
				zap.String("device", device),
				zap.Int("total", rep.Summary.Total),
				zap.Int("failed", rep.Summary.Failed))

			if report != "" {
				if err := writeReport(report, rep); err != nil {
					return err
				}
			}

			if err := render(app.out, output, rep, func(w io.Writer) error {
				return printReport(w, rep)
			}); err != nil {
				return err
			}
			if rep.Summary.Failed > 0 {
				return errNotCompliant
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "device key")
	cmd.Flags().StringVarP(&scenarios, "scenarios", "s", "", "scenario file (.json, .yaml, .csv or .xlsx)")
	cmd.Flags().StringVar(&report, "report", "", "also write the report as an XLSX workbook")
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output: text, json or yaml")
	return cmd
}

func newTemplateCmd(app *cli) *cobra.Command {
	var (
		device string
		file   string
	)
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Write an XLSX scenario sheet with one row per tmaxfrac level of a device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if device == "" || file == "" {
				return errors.New("--device and --file are required")
			}
			d, err := app.engine.Device(device)
			if err != nil {
				return err
			}
			f, err := os.Create(file)
			if err != nil {
				return err
			}
			if err := compliance.WriteScenarioTemplate(f, d); err != nil {
				f.Close()
				return fmt.Errorf("write template: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(app.out, "wrote %s (%d levels)\n", file, len(d.Levels()))
			return nil
		},
	}
	cmd.Flags().StringVarP(&device, "device", "d", "", "device key")
	cmd.Flags().StringVarP(&file, "file", "f", "", "output .xlsx file")
	return cmd
}

func readScenarioFile(path string) ([]compliance.Scenario, error) {
	format, err := compliance.FormatFromName(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scenarios, err := compliance.ParseScenarios(f, format)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return scenarios, nil
}

func writeReport(path string, rep *compliance.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := compliance.WriteReportXLSX(f, rep); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}

func printReport(w io.Writer, rep *compliance.Report) error {
	s := rep.Summary
	fmt.Fprintf(w, "%s: %d scenarios, %d passed, %d failed (%d errored)\n", rep.Device, s.Total, s.Passed, s.Failed, s.Errored)
	for _, r := range rep.Results {
		switch {
		case r.Error != "":
			fmt.Fprintf(w, "  #%d error: %s\n", r.Index, r.Error)
		case !r.Compliant:
			for _, v := range r.Violations {
				fmt.Fprintf(w, "  #%d %s\n", r.Index, v)
			}
		}
	}
	return nil
}
