package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
)

// ResolveOptions holds flags for the resolve, cat and primary commands.
type ResolveOptions struct {
	*RootOptions
	FormatFile bool // look NAME up as a format rather than a named input
}

// Resolution says which provider layer answered an open.
type Resolution struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`  // "input", "format", "primary" or "output"
	Layer    int    `json:"layer"` // index in the stack, -1 when nobody answered
	Provider string `json:"provider,omitempty"`
	Origin   string `json:"origin,omitempty"` // label on the handle
	Size     int64  `json:"size,omitempty"`
}

func (r Resolution) String() string {
	if r.Layer < 0 {
		return fmt.Sprintf("%s: no provider supplies this %s", r.Name, r.Kind)
	}
	s := fmt.Sprintf("%s: [%d] %s", r.Name, r.Layer, r.Provider)
	if r.Size > 0 {
		s += fmt.Sprintf(" (%d bytes)", r.Size)
	}
	return s
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve <name>",
		Short: "Show which provider supplies a file",
		Long: `Open NAME through the job's provider stack, as the engine would, and
report which layer answered. The handle is closed without being read.

Exit codes:
  0 - Some layer supplies the file
  1 - No layer supplies it, or the answering layer failed
  2 - Command error

Examples:
  texstack resolve article.cls
  texstack resolve --format-file latex.fmt --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := "input"
			if opts.FormatFile {
				kind = "format"
			}
			return resolve(opts, cmd, kind, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.FormatFile, "format-file", false, "resolve NAME as a format")
	return cmd
}

// NewPrimaryCommand creates the primary command.
func NewPrimaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "primary",
		Short: "Show which provider supplies the primary input",
		Long: `Open the primary input through the job's provider stack and report its
name and the layer that supplied it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(opts, cmd, "primary", "")
		},
	}
}

func resolve(opts *ResolveOptions, cmd *cobra.Command, kind, name string) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	built, err := buildJob(commandContext(cmd), job, cmd, io.Discard, logger)
	if err != nil {
		return err
	}
	defer built.Close()

	sink := newStatus(opts.RootOptions, cmd.ErrOrStderr())
	stack := built.Stack()

	var (
		res   provider.OpenResult[*provider.InputHandle]
		layer int
	)
	switch kind {
	case "format":
		res, layer = stack.ResolveInputFormat(name, sink)
	case "primary":
		res, layer = stack.ResolveInputPrimary(sink)
		name = "(primary)"
	default:
		res, layer = stack.ResolveInputName(name, sink)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	r := Resolution{Name: name, Kind: kind, Layer: layer}
	switch {
	case res.IsError():
		r.Provider = provider.Describe(stack.At(layer))
		if err := out.Error(CodeProviderFail, fmt.Sprintf("[%d] %s failed to open %s", layer, r.Provider, name), errs.Chain(res.Err())); err != nil {
			return err
		}
		return WrapExitError(ExitFailure, "resolving "+name, res.Err())
	case res.IsNotAvailable():
		if err := out.Success(r); err != nil {
			return err
		}
		return NewExitError(ExitFailure, r.String())
	}

	h := res.Handle()
	defer h.Close()
	r.Provider = provider.Describe(stack.At(layer))
	r.Origin = h.Origin()
	if kind == "primary" {
		r.Name = h.Name()
	}
	if size, err := h.Size(); err == nil {
		r.Size = size
	}
	return out.Success(r)
}

// NewCatCommand creates the cat command.
func NewCatCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cat <name>",
		Short: "Print a file as the provider stack serves it",
		Long: `Open NAME through the job's provider stack and copy its content to
standard output, exactly as the engine would read it (decompressed bundle
entries, fetched network files).`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cat(opts, cmd, args[0])
		},
	}
	cmd.Flags().BoolVar(&opts.FormatFile, "format-file", false, "read NAME as a format")
	return cmd
}

func cat(opts *ResolveOptions, cmd *cobra.Command, name string) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	built, err := buildJob(commandContext(cmd), job, cmd, io.Discard, logger)
	if err != nil {
		return err
	}
	defer built.Close()

	sink := newStatus(opts.RootOptions, cmd.ErrOrStderr())
	stack := built.Stack()

	var h *provider.InputHandle
	if opts.FormatFile {
		h, err = provider.OpenFormat(stack, name, sink)
	} else {
		h, err = provider.OpenInput(stack, name, sink)
	}
	if err != nil {
		sink.ReportError(err)
		return WrapExitError(ExitFailure, "cat "+name, err)
	}

	_, err = io.Copy(cmd.OutOrStdout(), h)
	if closeErr := h.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		err = errs.Wrap(errs.Foreign(errs.KindIO, err), "while reading %s", name)
		sink.ReportError(err)
		return WrapExitError(ExitFailure, "cat "+name, err)
	}
	return nil
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	return &cobra.Command{
		Use:   "put <name>",
		Short: "Write standard input to a file through the provider stack",
		Long: `Write standard input to NAME through the job's provider stack and report
which layer accepted it. Opening an output replaces the file, so there is
no dry run.

Example:
  texstack put extra.bib < refs.bib`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return put(opts, cmd, args[0])
		},
	}
}

func put(opts *ResolveOptions, cmd *cobra.Command, name string) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	job, err := loadJob(opts.RootOptions)
	if err != nil {
		return err
	}
	built, err := buildJob(commandContext(cmd), job, cmd, io.Discard, logger)
	if err != nil {
		return err
	}
	defer built.Close()

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}
	stack := built.Stack()
	res, layer := stack.ResolveOutputName(name)
	switch {
	case res.IsError():
		return WrapExitError(ExitFailure, "put "+name, res.Err())
	case res.IsNotAvailable():
		r := Resolution{Name: name, Kind: "output", Layer: layer}
		if err := out.Success(r); err != nil {
			return err
		}
		return NewExitError(ExitFailure, r.String())
	}

	h := res.Handle()
	n, err := io.Copy(h, cmd.InOrStdin())
	if closeErr := h.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return WrapExitError(ExitFailure, "put "+name, errs.Wrap(errs.Foreign(errs.KindIO, err), "while writing %s", name))
	}
	return out.Success(Resolution{
		Name:     name,
		Kind:     "output",
		Layer:    layer,
		Provider: provider.Describe(stack.At(layer)),
		Origin:   h.Origin(),
		Size:     n,
	})
}
