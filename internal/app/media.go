package app

import (
	"context"
	"time"

	"github.com/guidoenr/fantasia/internal/assets"
	"github.com/guidoenr/fantasia/internal/audio"
	"github.com/guidoenr/fantasia/internal/config"
	"github.com/guidoenr/fantasia/internal/video"
)

// mediaResult is the outcome of loading one package's assets off the frame
// goroutine. gen ties it to the theme switch that requested it.
type mediaResult struct {
	gen       int
	id        string
	audioOnly bool
	track     *audio.Track
	video     *video.Session
}

func (r mediaResult) release() {
	if r.track != nil {
		r.track.Close()
	}
	if r.video != nil {
		r.video.Close()
	}
}

// loadMedia validates and opens the assets of m. Failures leave the
// corresponding field nil and are logged.
func (a *App) loadMedia(ctx context.Context, gen int, m config.MeetingConfig, width, height int) {
	urls := m.Assets.Resolve(a.cfg.AssetBase)
	res := mediaResult{gen: gen, id: m.ID}

	ok := a.checker.Preload(ctx, urls)
	if ok.Audio {
		res.track = a.openTrack(ctx, urls.Audio)
	}
	if ok.Video {
		vs, err := video.Open(ctx, urls.Video, width, height)
		if err != nil {
			a.log.Printf("video %s: %v", urls.Video, err)
		} else {
			res.video = vs
		}
	}

	a.deliverMedia(ctx, res)
}

// loadAudio retries only the track of m after an earlier load left it missing.
func (a *App) loadAudio(ctx context.Context, gen int, m config.MeetingConfig) {
	url := m.Assets.Resolve(a.cfg.AssetBase).Audio
	res := mediaResult{gen: gen, id: m.ID, audioOnly: true}
	if a.checker.Available(ctx, url, assets.KindAudio) {
		res.track = a.openTrack(ctx, url)
	}
	a.deliverMedia(ctx, res)
}

func (a *App) openTrack(ctx context.Context, url string) *audio.Track {
	if a.cfg.DisableAudio || a.cfg.Capture {
		return nil
	}
	track, err := audio.OpenTrack(ctx, url, a.cfg.HTTPClient)
	if err != nil {
		a.log.Printf("audio %s: %v", url, err)
		return nil
	}
	return track
}

func (a *App) deliverMedia(ctx context.Context, res mediaResult) {
	select {
	case a.media <- res:
	case <-ctx.Done():
		res.release()
	}
}

// retryAudio queues a track reload for the current package when the last
// load left it silent. At most one load is in flight.
func (a *App) retryAudio() {
	if a.loading || a.track != nil || a.gen == 0 || a.cfg.DisableAudio || a.cfg.Capture {
		return
	}
	if a.cancelLoad != nil {
		a.cancelLoad()
	}
	a.loading = true
	ctx, cancel := mediaContext(a.ctx)
	a.cancelLoad = cancel
	gen, m := a.gen, a.current
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()
		a.loadAudio(ctx, gen, m)
	}()
	a.log.Printf("retrying audio for %s", m.ID)
}

// installMedia swaps in freshly loaded assets, retiring the previous track
// with a fade out.
func (a *App) installMedia(res mediaResult) {
	if res.gen != a.gen {
		res.release()
		return
	}
	a.loading = false

	if !res.audioOnly {
		if a.video != nil {
			a.video.Close()
			a.video = nil
		}
		if res.video != nil {
			a.video = res.video
			a.composer.SetVideo(res.video)
		} else {
			a.composer.SetVideo(nil)
		}
	}

	if a.cfg.Capture || a.cfg.DisableAudio {
		return
	}
	a.retireTrack()
	if res.track == nil {
		return
	}
	a.track = res.track
	a.control = audio.NewControl(res.track, a.volume)
	a.attachSource(res.track)
	a.log.Printf("loaded %q (%s)", res.track.Title(), res.track.Format())
	if a.interacted {
		a.startPlayback()
	}
}

// retireTrack fades the current track out and closes it in the background.
func (a *App) retireTrack() {
	if a.track == nil {
		return
	}
	a.detachSource()
	track, control := a.track, a.control
	a.track, a.control = nil, nil

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		control.Wait()
		if control.FadeOut(audio.DefaultFadeOut) {
			control.Wait()
		}
		control.Close()
		track.Close()
	}()
}

// startPlayback plays the current track and fades it in. A failure is
// retried on the next interaction.
func (a *App) startPlayback() {
	if a.track == nil || a.track.Playing() {
		return
	}
	if err := a.track.Play(); err != nil {
		a.log.Printf("audio playback: %v (will retry on next key)", err)
		return
	}
	a.control.FadeIn(a.volume, audio.DefaultFadeIn)
}

func mediaContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 2*time.Minute)
}
