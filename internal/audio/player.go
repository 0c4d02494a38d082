package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// LocalPlayer plays an audio payload on the server host. The router falls
// back to it when no device is viewing the session.
type LocalPlayer interface {
	Play(ctx context.Context, payload []byte) error
}

// playerCandidates in preference order. afplay ships with macOS; paplay
// and aplay cover PulseAudio and bare ALSA on Linux.
var playerCandidates = []string{"afplay", "paplay", "aplay"}

// ExecPlayer shells out to the first available command line audio player.
type ExecPlayer struct {
	// Command overrides player discovery when non-empty.
	Command string
}

// Play writes the payload to a temp file and hands it to the player. The
// file is removed when the player exits.
func (p *ExecPlayer) Play(ctx context.Context, payload []byte) error {
	player := p.Command
	if player == "" {
		found, err := findPlayer()
		if err != nil {
			return err
		}
		player = found
	}

	f, err := os.CreateTemp("", "agentwire-audio-*")
	if err != nil {
		return fmt.Errorf("staging audio payload: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(payload); err != nil {
		f.Close()
		return fmt.Errorf("staging audio payload: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("staging audio payload: %w", err)
	}

	cmd := exec.CommandContext(ctx, player, f.Name())
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w (%s)", player, err, string(out))
	}
	return nil
}

func findPlayer() (string, error) {
	for _, candidate := range playerCandidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no audio player found (tried %v)", playerCandidates)
}
