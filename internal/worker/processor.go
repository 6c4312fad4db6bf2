package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/sirupsen/logrus"

	"github.com/baiqwe/vidguide/internal/analysis"
	"github.com/baiqwe/vidguide/internal/frames"
	"github.com/baiqwe/vidguide/internal/media"
	"github.com/baiqwe/vidguide/internal/storage"
	"github.com/baiqwe/vidguide/internal/store"
	"github.com/baiqwe/vidguide/internal/types"
)

// Analyzer produces a canonical analysis for a video.
type Analyzer interface {
	Analyze(ctx context.Context, in analysis.Input) (*types.AnalysisResult, error)
}

// FrameExtractor produces a representative still image for a timestamp.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, req frames.Request) ([]byte, error)
}

// TranscriptResolver produces a plain-text transcript, possibly empty.
type TranscriptResolver interface {
	Resolve(ctx context.Context, url, dir string) (string, error)
}

// MediaSource probes video metadata and downloads media files.
type MediaSource interface {
	Probe(ctx context.Context, url string) (*media.Metadata, error)
	DownloadMedia(ctx context.Context, url, dir string) (string, error)
}

// Uploader stores a blob and returns its storage path.
type Uploader interface {
	UploadObject(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Processor drives one claimed project through the pipeline: duration,
// transcript, analysis, per-section frame extraction, persistence, terminal
// state. Every attempt lands the project in completed or failed exactly once.
type Processor struct {
	store           *store.Store
	scratch         *storage.Scratch
	bucket          Uploader
	media           MediaSource
	transcripts     TranscriptResolver
	analyzer        Analyzer
	extractor       FrameExtractor
	defaultDuration float64
	log             *logrus.Entry
}

// ProcessorOptions wires the processor's collaborators.
type ProcessorOptions struct {
	Store           *store.Store
	Scratch         *storage.Scratch
	Bucket          Uploader
	Media           MediaSource
	Transcripts     TranscriptResolver
	Analyzer        Analyzer
	Extractor       FrameExtractor
	DefaultDuration float64
	Log             *logrus.Entry
}

// NewProcessor builds a project processor.
func NewProcessor(opts ProcessorOptions) *Processor {
	if opts.DefaultDuration <= 0 {
		opts.DefaultDuration = 600
	}
	if opts.Log == nil {
		opts.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Processor{
		store:           opts.Store,
		scratch:         opts.Scratch,
		bucket:          opts.Bucket,
		media:           opts.Media,
		transcripts:     opts.Transcripts,
		analyzer:        opts.Analyzer,
		extractor:       opts.Extractor,
		defaultDuration: opts.DefaultDuration,
		log:             opts.Log,
	}
}

// Process runs one complete attempt for a claimed project. It never returns
// an error: any failure is recorded on the project record, and the scratch
// directory is released whatever the outcome.
func (p *Processor) Process(ctx context.Context, project *types.Project) {
	plog := p.log.WithField("project_id", project.ID)
	plog.WithField("video_url", project.VideoSourceURL).Info("processing project")

	defer func() {
		if r := recover(); r != nil {
			plog.WithField("stack", string(debug.Stack())).Errorf("panic while processing: %v", r)
			p.fail(plog, project.ID, fmt.Sprintf("worker panic: %v", r))
		}
		if err := p.scratch.Remove(project.ID); err != nil {
			plog.WithError(err).Warn("failed to remove scratch dir")
		}
	}()

	if err := p.run(ctx, plog, project); err != nil {
		plog.WithError(err).Error("project failed")
		p.fail(plog, project.ID, err.Error())
		return
	}
	plog.Info("project completed")
}

func (p *Processor) fail(plog *logrus.Entry, projectID, message string) {
	if err := p.store.MarkFailed(projectID, message); err != nil {
		plog.WithError(err).Error("failed to record failure state")
	}
}

// mediaState tracks the lazily downloaded media file for one attempt. The
// file is fetched at most once, and only when a strategy actually needs it.
type mediaState struct {
	path      string
	attempted bool
}

func (p *Processor) run(ctx context.Context, plog *logrus.Entry, project *types.Project) error {
	dir, err := p.scratch.ProjectDir(project.ID)
	if err != nil {
		return fmt.Errorf("scratch dir: %w", err)
	}

	// Resolve duration first and persist it immediately so cost estimates
	// are visible even if a later step fails.
	duration := p.defaultDuration
	var storyboard *media.StoryboardSpec
	meta, err := p.media.Probe(ctx, project.VideoSourceURL)
	if err != nil {
		plog.WithError(err).Warn("metadata probe failed, using default duration")
	} else {
		if meta.Duration > 0 {
			duration = meta.Duration
		}
		storyboard = meta.Storyboard
	}
	if err := p.store.SetDuration(project.ID, duration); err != nil {
		return err
	}
	creditsCost := types.CreditsForDuration(duration)

	// A missing transcript is not an error; it switches the analysis engine
	// into its reference-only mode.
	transcriptText, err := p.transcripts.Resolve(ctx, project.VideoSourceURL, dir)
	if err != nil {
		plog.WithError(err).Warn("transcript resolution failed, analyzing without transcript")
		transcriptText = ""
	}
	plog.WithField("transcript_chars", len(transcriptText)).Info("transcript resolved")

	result, err := p.analyzer.Analyze(ctx, analysis.Input{
		Transcript: transcriptText,
		VideoURL:   project.VideoSourceURL,
		Duration:   duration,
		Mode:       project.GenerationMode,
	})
	if err != nil {
		return fmt.Errorf("content analysis failed: %w", err)
	}

	if result.Summary != "" {
		if err := p.store.SetTitle(project.ID, types.TruncateTitle(result.Summary)); err != nil {
			return err
		}
	}

	withImages := project.GenerationMode == types.ModeTextWithImages
	ms := &mediaState{}

	for _, sec := range result.Sections {
		sec.TimestampSeconds = analysis.ClampTimestamp(sec.TimestampSeconds, duration)
		sec.ImagePath = ""

		// In text_with_images mode every section gets an extraction attempt:
		// the mode is the user's explicit choice, so the per-section flag is
		// not consulted. text_only forces no image regardless of any flag.
		if withImages {
			if data := p.extractImage(ctx, plog, project, dir, storyboard, sec.TimestampSeconds, ms); data != nil {
				path, err := p.bucket.UploadObject(ctx,
					storage.StepImagePath(project.ID, sec.Order), "image/jpeg", data)
				if err != nil {
					plog.WithError(err).WithField("order", sec.Order).
						Warn("image upload failed, continuing without image")
				} else {
					sec.ImagePath = path
				}
			}
		}

		if sec.Content == "" {
			sec.Content = sec.Title
		}

		// Section persistence failure is fatal for the whole project.
		if err := p.store.InsertStep(project.ID, sec); err != nil {
			return err
		}
		plog.WithFields(logrus.Fields{"order": sec.Order, "has_image": sec.ImagePath != ""}).
			Info("section persisted")
	}

	return p.store.MarkCompleted(project.ID, creditsCost)
}

// extractImage attempts frame extraction for one section. The media file is
// downloaded lazily: only after the cheap storyboard path has failed once.
// Returns nil when no image could be produced, which is a valid outcome.
func (p *Processor) extractImage(ctx context.Context, plog *logrus.Entry, project *types.Project, dir string, storyboard *media.StoryboardSpec, ts float64, ms *mediaState) []byte {
	req := frames.Request{
		VideoURL:         project.VideoSourceURL,
		MediaPath:        ms.path,
		ScratchDir:       dir,
		Storyboard:       storyboard,
		TimestampSeconds: ts,
	}

	data, err := p.extractor.ExtractFrame(ctx, req)
	if err == nil {
		return data
	}

	if errors.Is(err, frames.ErrNoFrame) && !ms.attempted {
		ms.attempted = true
		path, derr := p.media.DownloadMedia(ctx, project.VideoSourceURL, dir)
		if derr != nil {
			plog.WithError(derr).Warn("media download failed, sections will use storyboard only")
			return nil
		}
		ms.path = path

		req.MediaPath = path
		if data, err = p.extractor.ExtractFrame(ctx, req); err == nil {
			return data
		}
	}

	plog.WithError(err).WithField("timestamp", ts).Info("no frame available for section")
	return nil
}
