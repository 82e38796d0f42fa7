package services

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	yt "github.com/kkdai/youtube/v2"
	openai "github.com/sashabaranov/go-openai"
)

// audioDownloader fetches a compressed audio-only file for a video into dir
// and returns its path.
type audioDownloader interface {
	Download(ctx context.Context, videoID, dir string) (string, error)
}

// speechToText transcribes one audio file of at most the service's size
// ceiling and returns plain text.
type speechToText interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// commandRunner shells out to ffmpeg/ffprobe. Kept behind an interface so the
// chunking logic is testable without media files.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s failed: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// WhisperService is the slow acquisition path: download compressed audio,
// split into bounded chunks when the file exceeds the transcription service's
// size ceiling, transcribe each chunk, and concatenate.
type WhisperService struct {
	downloader   audioDownloader
	stt          speechToText
	runner       commandRunner
	maxFileBytes int64
	chunkSeconds int
}

func NewWhisperService(openAIKey, audioBitrate string, maxFileBytes int64, chunkSeconds int) *WhisperService {
	runner := execRunner{}
	return &WhisperService{
		downloader: &youtubeAudioDownloader{
			client:       &yt.Client{},
			runner:       runner,
			bitrate:      audioBitrate,
			maxFileBytes: maxFileBytes,
		},
		stt:          &openaiTranscriber{client: openai.NewClient(openAIKey)},
		runner:       runner,
		maxFileBytes: maxFileBytes,
		chunkSeconds: chunkSeconds,
	}
}

// Transcribe downloads the video's audio and produces a complete transcript,
// or fails without partial results. The working directory is removed on every
// exit path.
func (s *WhisperService) Transcribe(ctx context.Context, videoID string) (string, error) {
	tempDir, err := os.MkdirTemp("", "whisper-"+videoID+"-")
	if err != nil {
		return "", fmt.Errorf("failed to create working directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(tempDir); rmErr != nil {
			log.Printf("Failed to clean up working directory %s: %v", tempDir, rmErr)
		}
	}()

	audioPath, err := s.downloader.Download(ctx, videoID, tempDir)
	if err != nil {
		return "", fmt.Errorf("audio download failed for %s: %w", videoID, err)
	}

	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to stat downloaded audio: %w", err)
	}

	if info.Size() <= s.maxFileBytes {
		log.Printf("Audio file is %.1fMB, transcribing directly", float64(info.Size())/1024/1024)
		text, err := s.stt.Transcribe(ctx, audioPath)
		if err != nil {
			return "", fmt.Errorf("transcription failed for %s: %w", videoID, err)
		}
		return text, nil
	}

	log.Printf("Audio file is %.1fMB, splitting into chunks", float64(info.Size())/1024/1024)
	return s.transcribeChunked(ctx, videoID, audioPath, tempDir)
}

func (s *WhisperService) transcribeChunked(ctx context.Context, videoID, audioPath, tempDir string) (string, error) {
	duration, err := s.probeDuration(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("duration probe failed for %s: %w", videoID, err)
	}

	starts := chunkStarts(duration, s.chunkSeconds)
	if len(starts) == 0 {
		return "", fmt.Errorf("duration probe for %s returned no audio to chunk", videoID)
	}

	transcripts := make([]string, 0, len(starts))
	for i, start := range starts {
		chunkPath := filepath.Join(tempDir, fmt.Sprintf("%s_chunk_%d.mp3", videoID, i))

		// Stream copy, no re-encode
		_, err := s.runner.Run(ctx, "ffmpeg",
			"-i", audioPath,
			"-ss", strconv.Itoa(start),
			"-t", strconv.Itoa(s.chunkSeconds),
			"-acodec", "copy",
			"-y",
			chunkPath,
		)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d extraction failed for %s: %w", i+1, len(starts), videoID, err)
		}

		log.Printf("Transcribing chunk %d/%d (%ds-%ds)", i+1, len(starts), start, start+s.chunkSeconds)
		text, err := s.stt.Transcribe(ctx, chunkPath)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d transcription failed for %s: %w", i+1, len(starts), videoID, err)
		}
		transcripts = append(transcripts, text)
	}

	log.Printf("Transcribed %d chunks for video %s", len(starts), videoID)
	return strings.Join(transcripts, " "), nil
}

func (s *WhisperService) probeDuration(ctx context.Context, audioPath string) (float64, error) {
	out, err := s.runner.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		audioPath,
	)
	if err != nil {
		return 0, err
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("probed duration is %.1fs", duration)
	}
	return duration, nil
}

// chunkStarts returns the start offsets of consecutive non-overlapping chunks
// covering durationSeconds. The final chunk may be shorter than chunkSeconds.
func chunkStarts(durationSeconds float64, chunkSeconds int) []int {
	if durationSeconds <= 0 || chunkSeconds <= 0 {
		return nil
	}
	var starts []int
	total := int(math.Ceil(durationSeconds))
	for start := 0; start < total; start += chunkSeconds {
		starts = append(starts, start)
	}
	return starts
}

// youtubeAudioDownloader pulls the smallest usable audio-only stream and
// re-encodes it to mp3 at a fixed bitrate for predictable chunking.
type youtubeAudioDownloader struct {
	client       *yt.Client
	runner       commandRunner
	bitrate      string
	maxFileBytes int64
}

func (d *youtubeAudioDownloader) Download(ctx context.Context, videoID, dir string) (string, error) {
	video, err := d.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch video metadata: %w", err)
	}

	format, err := pickAudioFormat(video.Formats.WithAudioChannels(), d.maxFileBytes)
	if err != nil {
		return "", err
	}

	stream, _, err := d.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("failed to open audio stream: %w", err)
	}
	defer stream.Close()

	rawPath := filepath.Join(dir, videoID+".source")
	rawFile, err := os.Create(rawPath)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}
	if _, err := io.Copy(rawFile, stream); err != nil {
		rawFile.Close()
		return "", fmt.Errorf("failed to read audio stream: %w", err)
	}
	rawFile.Close()

	mp3Path := filepath.Join(dir, videoID+".mp3")
	_, err = d.runner.Run(ctx, "ffmpeg",
		"-i", rawPath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", d.bitrate,
		"-y",
		mp3Path,
	)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode audio: %w", err)
	}
	os.Remove(rawPath)

	return mp3Path, nil
}

// pickAudioFormat prefers the lowest-bitrate audio-only stream that the
// platform reports as fitting under the size ceiling, falling back to the
// lowest-bitrate audio stream overall.
func pickAudioFormat(formats yt.FormatList, maxFileBytes int64) (*yt.Format, error) {
	var underCeiling, smallest *yt.Format
	for i := range formats {
		f := &formats[i]
		if !strings.HasPrefix(f.MimeType, "audio/") {
			continue
		}
		if smallest == nil || f.Bitrate < smallest.Bitrate {
			smallest = f
		}
		if f.ContentLength > 0 && f.ContentLength <= maxFileBytes {
			if underCeiling == nil || f.Bitrate < underCeiling.Bitrate {
				underCeiling = f
			}
		}
	}
	if underCeiling != nil {
		return underCeiling, nil
	}
	if smallest != nil {
		return smallest, nil
	}
	return nil, fmt.Errorf("no audio-only formats available")
}

type openaiTranscriber struct {
	client *openai.Client
}

func (t *openaiTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", fmt.Errorf("whisper request failed: %w", err)
	}
	return resp.Text, nil
}
