package service

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bnema/hlsd/internal/adapter/converter/ffmpeg"
	"github.com/bnema/hlsd/internal/adapter/storage/jsonfile"
	"github.com/bnema/hlsd/internal/domain"
	"github.com/bnema/hlsd/internal/hls"
	"github.com/bnema/hlsd/internal/infrastructure/logger"
	"github.com/bnema/hlsd/internal/port"
	"github.com/stretchr/testify/require"
)

// scriptEncoder runs a shell script in place of ffmpeg. The script gets the
// output directory as $1 and the playlist path as $2.
type scriptEncoder struct {
	script string
	binary string
}

func (e scriptEncoder) Command(ctx context.Context, req port.EncodeRequest) (*exec.Cmd, error) {
	binary := e.binary
	if binary == "" {
		binary = "sh"
	}
	return exec.CommandContext(ctx, binary, "-c", e.script, "encoder", req.OutputDir, req.PlaylistPath), nil
}

func (e scriptEncoder) ParseProgressLine(line string) (domain.ProgressEvent, bool) {
	return ffmpeg.ParseProgressLine(line)
}

// completeScript writes n segments and a finished playlist while reporting
// progress over a duration of n*6 seconds.
func completeScript(n int) string {
	script := `printf '#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n' > "$2.tmp"` + "\n"
	for i := 0; i < n; i++ {
		script += fmt.Sprintf(`: > "$1/%03d.ts"`+"\n", i)
		script += fmt.Sprintf(`printf '#EXTINF:6.0,\n%03d.ts\n' >> "$2.tmp"`+"\n", i)
		script += fmt.Sprintf("echo out_time_us=%d\necho progress=continue\n", (i+1)*6_000_000-1)
	}
	script += `echo '#EXT-X-ENDLIST' >> "$2.tmp"` + "\n"
	script += `mv "$2.tmp" "$2"` + "\n"
	script += "echo progress=end\n"
	return script
}

type testEnv struct {
	store     *jsonfile.Store
	layout    hls.Layout
	inspector *hls.Inspector
	cache     *ProgressCache
	writer    *MetadataWriter
	events    *EventBus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	root := t.TempDir()
	store, err := jsonfile.NewStore(root)
	require.NoError(t, err)
	layout := hls.NewLayout(filepath.Join(root, "hls"))
	return &testEnv{
		store:     store,
		layout:    layout,
		inspector: hls.NewInspector(layout),
		cache:     NewProgressCache(),
		writer:    NewMetadataWriter(store, logger.Discard(), WithRetryPolicy(2, time.Millisecond)),
		events:    NewEventBus(),
	}
}

func (e *testEnv) supervisor(enc port.Encoder, interval time.Duration) *Supervisor {
	return NewSupervisor(enc, e.inspector, e.cache, e.writer, e.events, logger.Discard(),
		SupervisorConfig{PersistInterval: interval})
}

func (e *testEnv) seed(t *testing.T, id string, duration int) *domain.MediaItem {
	t.Helper()
	src := filepath.Join(t.TempDir(), id+".mp4")
	require.NoError(t, os.WriteFile(src, []byte("video"), 0600))
	item := domain.NewMediaItem(id, src, duration)
	require.NoError(t, e.store.Save(context.Background(), item))
	return item
}

// writeOutput lays out n segments and, when withPlaylist, a playlist
// listing them.
func (e *testEnv) writeOutput(t *testing.T, id string, n int, withPlaylist, ended bool) {
	t.Helper()
	dir, err := e.layout.Dir(id)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(dir, 0755))
	playlist := "#EXTM3U\n"
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("%03d.ts", i)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0600))
		playlist += "#EXTINF:6.0,\n" + name + "\n"
	}
	if ended {
		playlist += hls.EndListTag + "\n"
	}
	if withPlaylist {
		require.NoError(t, os.WriteFile(filepath.Join(dir, hls.PlaylistName), []byte(playlist), 0600))
	}
}

// recordingBus keeps every event for later assertions.
type recordingBus struct {
	mu     sync.Mutex
	events []Event
}

func (b *recordingBus) Publish(_ string, event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

func runExit(t *testing.T, code int) error {
	t.Helper()
	err := exec.Command("sh", "-c", fmt.Sprintf("exit %d", code)).Run()
	require.Error(t, err)
	return err
}
