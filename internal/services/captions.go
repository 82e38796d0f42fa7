package services

import (
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"log"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	ytapi "github.com/hightemp/youtube-transcript-api-go/api"

	"civicscribe-backend/internal/models"
)

// CaptionService is the fast acquisition path: it retrieves an
// already-produced caption track without downloading any media.
type CaptionService struct {
	httpClient    *http.Client
	transcriptAPI *ytapi.YouTubeTranscriptApi
}

type timedTextXML struct {
	XMLName xml.Name  `xml:"transcript"`
	Texts   []textXML `xml:"text"`
}

type textXML struct {
	Start string `xml:"start,attr"`
	Dur   string `xml:"dur,attr"`
	Text  string `xml:",chardata"`
}

// captionTrack is what we can recover about a track from the watch page.
type captionTrack struct {
	BaseURL      string
	LanguageCode string
	LanguageName string
	IsGenerated  bool
}

var (
	captionTracksRe    = regexp.MustCompile(`"captionTracks"\s*:\s*\[(.*?)\]`)
	captionRendererRe  = regexp.MustCompile(`"playerCaptionsTracklistRenderer"`)
	baseURLRe          = regexp.MustCompile(`"baseUrl"\s*:\s*"(.*?)"`)
	languageCodeRe     = regexp.MustCompile(`"languageCode"\s*:\s*"(.*?)"`)
	languageNameRe     = regexp.MustCompile(`"name"\s*:\s*\{\s*"simpleText"\s*:\s*"(.*?)"`)
	generatedKindRe    = regexp.MustCompile(`"kind"\s*:\s*"asr"`)
	unavailableStateRe = regexp.MustCompile(`"playabilityStatus"\s*:\s*\{\s*"status"\s*:\s*"(ERROR|LOGIN_REQUIRED|UNPLAYABLE)"`)
)

func NewCaptionService() *CaptionService {
	return &CaptionService{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		transcriptAPI: ytapi.NewYouTubeTranscriptApi(),
	}
}

// Fetch retrieves the caption track for a video. Failures map onto the
// four-member taxonomy in errors.go; the acquisition service decides from the
// returned error whether the speech-to-text fallback applies.
func (s *CaptionService) Fetch(videoID string) (*models.RawCaptions, error) {
	pageHTML, err := s.fetchWatchPage(videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
	}

	if unavailableStateRe.MatchString(pageHTML) || strings.Contains(pageHTML, "Video unavailable") {
		return nil, fmt.Errorf("%w: %s", ErrVideoUnavailable, videoID)
	}

	track, err := extractCaptionTrack(pageHTML)
	if err != nil {
		return nil, err
	}

	snippets, err := s.fetchTimedText(track.BaseURL)
	if err != nil {
		// The track listing existed but the timedtext document could not be
		// retrieved; give the transcript API one attempt before giving up.
		log.Printf("Timedtext retrieval failed for %s, trying transcript API: %v", videoID, err)
		snippets, err = s.fetchViaTranscriptAPI(videoID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRetrievalFailed, err)
		}
	}

	if len(snippets) == 0 {
		return nil, fmt.Errorf("%w: caption track for %s is empty", ErrNoCaptionsFound, videoID)
	}

	return &models.RawCaptions{
		VideoID:      videoID,
		Snippets:     snippets,
		Language:     track.LanguageName,
		LanguageCode: track.LanguageCode,
		IsGenerated:  track.IsGenerated,
	}, nil
}

func (s *CaptionService) fetchWatchPage(videoID string) (string, error) {
	pageURL := fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
	req, _ := http.NewRequest("GET", pageURL, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch watch page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read watch page: %w", err)
	}

	return string(body), nil
}

// extractCaptionTrack pulls the first caption track out of the watch page
// player response. A page without the captions renderer means captions are
// disabled; a renderer without tracks means none were produced.
func extractCaptionTrack(pageHTML string) (*captionTrack, error) {
	if !captionRendererRe.MatchString(pageHTML) {
		return nil, fmt.Errorf("%w", ErrCaptionsDisabled)
	}

	matches := captionTracksRe.FindStringSubmatch(pageHTML)
	if len(matches) < 2 {
		return nil, fmt.Errorf("%w", ErrNoCaptionsFound)
	}

	tracksJSON := matches[1]
	urlMatches := baseURLRe.FindStringSubmatch(tracksJSON)
	if len(urlMatches) < 2 {
		return nil, fmt.Errorf("%w: caption track found but baseUrl missing", ErrNoCaptionsFound)
	}

	u := urlMatches[1]
	u = strings.ReplaceAll(u, `\u0026`, "&")
	u = strings.ReplaceAll(u, `\/`, "/")

	track := &captionTrack{
		BaseURL:     u,
		IsGenerated: generatedKindRe.MatchString(tracksJSON),
	}
	if m := languageCodeRe.FindStringSubmatch(tracksJSON); len(m) > 1 {
		track.LanguageCode = m[1]
	}
	if m := languageNameRe.FindStringSubmatch(tracksJSON); len(m) > 1 {
		track.LanguageName = m[1]
	}

	return track, nil
}

func (s *CaptionService) fetchTimedText(captionURL string) ([]models.CaptionSnippet, error) {
	resp, err := s.httpClient.Get(captionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch captions: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read captions: %w", err)
	}

	return parseCaptionsXML(body)
}

func parseCaptionsXML(data []byte) ([]models.CaptionSnippet, error) {
	var tt timedTextXML
	if err := xml.Unmarshal(data, &tt); err != nil {
		return nil, fmt.Errorf("failed to parse captions XML: %w", err)
	}

	var snippets []models.CaptionSnippet
	for _, t := range tt.Texts {
		text := strings.TrimSpace(html.UnescapeString(t.Text))
		if text == "" {
			continue
		}
		start, _ := strconv.ParseFloat(t.Start, 64)
		dur, _ := strconv.ParseFloat(t.Dur, 64)
		snippets = append(snippets, models.CaptionSnippet{
			Text:     text,
			Start:    start,
			Duration: dur,
		})
	}

	return snippets, nil
}

// fetchViaTranscriptAPI is the secondary caption attempt. The library only
// surfaces text, so snippet timings are left zero on this path.
func (s *CaptionService) fetchViaTranscriptAPI(videoID string) ([]models.CaptionSnippet, error) {
	transcript, err := s.transcriptAPI.GetTranscript(videoID, []string{"en", "en-US", "en-GB"})
	if err != nil {
		// Request any available language
		transcript, err = s.transcriptAPI.GetTranscript(videoID, nil)
		if err != nil {
			return nil, fmt.Errorf("transcript API failed: %w", err)
		}
	}

	var snippets []models.CaptionSnippet
	for _, entry := range transcript.Entries {
		text := strings.TrimSpace(entry.Text)
		if text == "" {
			continue
		}
		snippets = append(snippets, models.CaptionSnippet{Text: text})
	}

	return snippets, nil
}
