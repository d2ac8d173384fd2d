package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/common-nighthawk/go-figure"
	"github.com/fxnlabs/gpublas/fixtures"
	"github.com/fxnlabs/gpublas/internal/dispatch"
	"github.com/fxnlabs/gpublas/internal/functions"
	"github.com/fxnlabs/gpublas/pkg/gpublas"
	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "Print machine readable output"}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a configuration file from the default template",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing file"},
		},
		Action: func(c *cli.Context) error {
			path := c.String("config")
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Configuration written to %s\n", path)
			return nil
		},
	}
}

func infoCommand(e *env) *cli.Command {
	return &cli.Command{
		Name:  "info",
		Usage: "Show the device the runtime selects",
		Flags: []cli.Flag{jsonFlag},
		Action: func(c *cli.Context) error {
			return withHandle(c.Context, e, func(h *gpublas.Handle) error {
				manager := h.Manager()
				info := manager.GetDeviceInfo()
				if c.Bool("json") {
					return writeJSON(c.App.Writer, struct {
						Backend string `json:"backend"`
						Context string `json:"context"`
						Device  any    `json:"device"`
					}{manager.GetBackendType(), manager.ID(), info})
				}

				w := c.App.Writer
				fmt.Fprintln(w, figure.NewFigure("gpublas", "", true).String())
				fmt.Fprintf(w, "Backend:        %s\n", manager.GetBackendType())
				fmt.Fprintf(w, "Device:         %s\n", info.Name)
				fmt.Fprintf(w, "Compute units:  %d\n", info.ComputeUnits)
				fmt.Fprintf(w, "Capabilities:   %s\n", info.ComputeCapability)
				fmt.Fprintf(w, "Memory:         %d MB\n", info.TotalMemory/(1024*1024))
				fmt.Fprintf(w, "Driver:         %s\n", info.DriverVersion)
				return nil
			})
		},
	}
}

type variantInfo struct {
	Operation  string `json:"operation"`
	Variant    string `json:"variant"`
	Module     string `json:"module"`
	EntryPoint string `json:"entryPoint"`
}

func listVariants[P any, S dispatch.Score[S]](r *dispatch.Registry[P, S]) []variantInfo {
	var out []variantInfo
	for _, v := range r.Variants() {
		module, entryPoint := v.Program()
		out = append(out, variantInfo{r.Operation(), v.Name(), module, entryPoint})
	}
	return out
}

func variantsCommand() *cli.Command {
	return &cli.Command{
		Name:  "variants",
		Usage: "List the registered implementation variants in selection order",
		Flags: []cli.Flag{jsonFlag},
		Action: func(c *cli.Context) error {
			var all []variantInfo
			all = append(all, listVariants(functions.Ssyr)...)
			all = append(all, listVariants(functions.Csrot)...)
			all = append(all, listVariants(functions.Srot)...)
			if c.Bool("json") {
				return writeJSON(c.App.Writer, all)
			}
			for _, v := range all {
				fmt.Fprintf(c.App.Writer, "%-6s %-38s %s/%s\n", v.Operation, v.Variant, v.Module, v.EntryPoint)
			}
			return nil
		},
	}
}

type selection[S any] struct {
	Operation  string                 `json:"operation"`
	Selected   string                 `json:"selected,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Candidates []dispatch.Candidate[S] `json:"candidates"`
}

func describeSelection[P any, S dispatch.Score[S]](r *dispatch.Registry[P, S], params P) selection[S] {
	s := selection[S]{Operation: r.Operation(), Candidates: r.Evaluate(params)}
	v, _, err := r.Select(params)
	if err != nil {
		s.Error = err.Error()
	} else {
		s.Selected = v.Name()
	}
	return s
}

func printSelection[S any](w io.Writer, s selection[S], asJSON bool) error {
	if asJSON {
		return writeJSON(w, s)
	}
	for _, c := range s.Candidates {
		marker := " "
		if c.Variant == s.Selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-38s applicable=%-5t score=%+v\n", marker, c.Variant, c.Applicable, c.Score)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "no variant selected: %s\n", s.Error)
	}
	return nil
}

func selectCommand() *cli.Command {
	return &cli.Command{
		Name:  "select",
		Usage: "Show how every variant of an operation scores for a call shape",
		Flags: append(callFlags(), jsonFlag),
		Action: func(c *cli.Context) error {
			call, err := parseCall(c)
			if err != nil {
				return err
			}
			asJSON := c.Bool("json")
			switch call.op {
			case "ssyr":
				return printSelection(c.App.Writer, describeSelection(functions.Ssyr, call.ssyr(nil, nil)), asJSON)
			case "csrot":
				return printSelection(c.App.Writer, describeSelection(functions.Csrot, call.csrot(nil, nil)), asJSON)
			default:
				return printSelection(c.App.Writer, describeSelection(functions.Srot, call.srot(nil, nil)), asJSON)
			}
		},
	}
}
