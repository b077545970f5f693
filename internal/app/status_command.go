package app

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	clierr "github.com/SiphoYawe/mina-cli/internal/errors"
	"github.com/SiphoYawe/mina-cli/internal/gateway"
	"github.com/SiphoYawe/mina-cli/internal/model"
	"github.com/SiphoYawe/mina-cli/internal/registry"
	"github.com/SiphoYawe/mina-cli/internal/ui"
)

const statusPollInterval = 5 * time.Second

func (s *runtimeState) newStatusCommand() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status <txHash>",
		Short: "Look up a bridge transfer by source transaction hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s.resetCommandDiagnostics()
			hash := strings.TrimSpace(args[0])
			if !isTxHash(hash) {
				return clierr.New(clierr.CodeUsage, "argument must be a 0x-prefixed 32-byte transaction hash")
			}
			if watch && !s.machineOutput() {
				return s.watchStatus(cmd, hash)
			}
			// Machine output gets a single snapshot even with --watch.
			ctx, cancel := context.WithTimeout(context.Background(), s.settings.Timeout)
			defer cancel()
			start := time.Now()
			st, err := s.gateway.Status(ctx, hash)
			status := gatewayStatus(start, err)
			s.captureCommandDiagnostics(nil, status)
			if err != nil {
				return err
			}
			if st == nil {
				return clierr.New(clierr.CodeNotFound, fmt.Sprintf("no bridge transfer found for %s", hash))
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), statusView(st), nil, cacheMetaBypass(), status)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Poll until the transfer reaches a terminal status")
	return cmd
}

func (s *runtimeState) watchStatus(cmd *cobra.Command, hash string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	theme := s.theme()
	w := cmd.OutOrStdout()

	poll := time.NewTicker(statusPollInterval)
	defer poll.Stop()
	frame := time.NewTicker(time.Second)
	defer frame.Stop()

	type lookup struct {
		status *gateway.TransactionStatus
		err    error
	}
	results := make(chan lookup, 1)
	fetch := func() {
		fetchCtx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
		defer cancel()
		st, err := s.gateway.Status(fetchCtx, hash)
		select {
		case results <- lookup{status: st, err: err}:
		default:
		}
	}
	go fetch()

	started := time.Now()
	tick := 0
	label := "looking up transfer"
	lastLine := ""
	render := func() {
		line := fmt.Sprintf("%s %s %s", theme.Accent(ui.FrameAt(tick)), theme.Dim(formatElapsed(time.Since(started))), label)
		if theme.Enabled() {
			fmt.Fprintf(w, "\r\033[K%s", line)
			lastLine = line
			return
		}
		if line != lastLine {
			fmt.Fprintln(w, label)
			lastLine = line
		}
	}
	closeLine := func() {
		if theme.Enabled() {
			fmt.Fprintln(w)
		}
	}
	render()

	for {
		select {
		case <-ctx.Done():
			closeLine()
			fmt.Fprintln(w, theme.Dim("watch interrupted"))
			return nil
		case <-frame.C:
			tick++
			render()
		case <-poll.C:
			go fetch()
		case res := <-results:
			if res.err != nil {
				if !staleFallbackAllowed(res.err) {
					closeLine()
					return res.err
				}
				label = "gateway unreachable, retrying"
				render()
				continue
			}
			if res.status == nil {
				label = "waiting for the gateway to index the transfer"
				render()
				continue
			}
			st := res.status
			label = st.Status
			if st.Substatus != "" {
				label = fmt.Sprintf("%s (%s)", st.Status, st.Substatus)
			}
			switch st.Status {
			case gateway.TxStatusCompleted:
				closeLine()
				fmt.Fprintf(w, "%s completed in %s\n", theme.Success("✔"), formatElapsed(time.Since(started)))
				if st.DestTx != "" {
					fmt.Fprintf(w, "  %s %s\n", theme.Dim("destination tx:"), st.DestTx)
				}
				if url := explorerURLFor(st); url != "" {
					fmt.Fprintf(w, "  %s %s\n", theme.Dim("explorer:"), url)
				}
				return nil
			case gateway.TxStatusFailed:
				closeLine()
				fmt.Fprintf(w, "%s transfer failed", theme.Error("✖"))
				if st.Substatus != "" {
					fmt.Fprintf(w, " (%s)", st.Substatus)
				}
				fmt.Fprintln(w)
				s.errorRendered = true
				return clierr.New(clierr.CodeExecution, fmt.Sprintf("bridge transfer %s failed", hash))
			default:
				render()
			}
		}
	}
}

func statusView(st *gateway.TransactionStatus) model.StatusView {
	view := model.StatusView{
		TxHash:      st.TxHash,
		Status:      st.Status,
		Substatus:   st.Substatus,
		FromChain:   chainRef(st.FromChainID),
		ToChain:     chainRef(st.ToChainID),
		SourceTx:    st.SourceTx,
		DestTx:      st.DestTx,
		ExplorerURL: explorerURLFor(st),
	}
	return view
}

func explorerURLFor(st *gateway.TransactionStatus) string {
	if st.FromChainID == 0 {
		return ""
	}
	source := st.SourceTx
	if source == "" {
		source = st.TxHash
	}
	return registry.ExplorerTxURL(st.FromChainID, source)
}

func chainRef(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

func formatElapsed(d time.Duration) string {
	total := int(d.Round(time.Second).Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func isTxHash(s string) bool {
	if !strings.HasPrefix(s, "0x") || len(s) != 66 {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}
