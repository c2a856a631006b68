package video

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// ErrDecode is returned when a file cannot be opened as a video.
var ErrDecode = errors.New("could not open video file")

// Info is the subset of ffprobe metadata the pipeline needs.
type Info struct {
	FPS         float64 // 0 when the container does not report a rate
	TotalFrames int     // 0 when unknown
	Width       int
	Height      int
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// Probe reads stream metadata with ffprobe. Anything ffprobe cannot parse, or a file
// without a video stream, is ErrDecode.
func Probe(path string) (Info, error) {
	out, err := ffmpeg.Probe(path)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return parseProbe([]byte(out))
}

func parseProbe(raw []byte) (Info, error) {
	var res probeOutput
	if err := json.Unmarshal(raw, &res); err != nil {
		return Info{}, fmt.Errorf("%w: ffprobe JSON parse error: %v", ErrDecode, err)
	}

	for _, s := range res.Streams {
		if s.CodecType != "video" {
			continue
		}
		fps := parseRate(s.AvgFrameRate)
		if fps == 0 {
			fps = parseRate(s.RFrameRate)
		}
		frames, _ := strconv.Atoi(s.NbFrames)
		return Info{FPS: fps, TotalFrames: frames, Width: s.Width, Height: s.Height}, nil
	}
	return Info{}, fmt.Errorf("%w: no video stream", ErrDecode)
}

// parseRate turns an ffprobe rational like "30000/1001" into frames per second.
// Malformed or zero rates ("0/0") yield 0.
func parseRate(r string) float64 {
	num, den, found := strings.Cut(r, "/")
	if !found {
		v, err := strconv.ParseFloat(r, 64)
		if err != nil || v < 0 {
			return 0
		}
		return v
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 || n <= 0 {
		return 0
	}
	return n / d
}
