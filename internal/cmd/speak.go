package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	"github.com/dotdevdotdev/agentwire-sub003/internal/audio"
	"github.com/dotdevdotdev/agentwire-sub003/internal/style"
)

var speakCmd = &cobra.Command{
	Use:     "speak NAME[@MACHINE] FILE",
	GroupID: GroupSessions,
	Short:   "Send an audio file through a running server",
	Long: `Speak posts an audio file to a running agentwire server, which routes
it to the devices viewing the session or plays it locally when nobody
is watching. This is the same path agent pipelines use.`,
	Args: cobra.ExactArgs(2),
	RunE: runSpeak,
}

var speakServer string

func init() {
	speakCmd.Flags().StringVar(&speakServer, "server", "http://127.0.0.1:7600", "Server base URL")

	rootCmd.AddCommand(speakCmd)
}

func runSpeak(cmd *cobra.Command, args []string) error {
	payload, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading audio file: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/sessions/%s/speak", speakServer, url.PathEscape(args[0]))
	resp, err := http.Post(endpoint, "application/octet-stream", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("posting audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		var apiErr struct {
			Message string `json:"message"`
		}
		json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("server rejected audio: %s (%s)", resp.Status, apiErr.Message)
	}

	var outcome audio.Outcome
	if err := json.NewDecoder(resp.Body).Decode(&outcome); err != nil {
		return fmt.Errorf("decoding outcome: %w", err)
	}

	switch {
	case outcome.Local:
		fmt.Printf("%s played locally (no viewers)\n", style.Success.Render("✓"))
	case outcome.Devices > 0:
		fmt.Printf("%s delivered to %d device(s)\n", style.Success.Render("✓"), outcome.Devices)
	default:
		fmt.Printf("%s not delivered (%d suppressed as duplicates)\n",
			style.Dim.Render("–"), outcome.Suppressed)
	}
	return nil
}
