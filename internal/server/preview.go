package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/posebake/internal/capture"
)

// PreviewHandler serves frames of a video as JPEG. With a t query parameter
// it returns the single frame at t seconds; otherwise it streams the video
// as MJPEG at the sampling rate.
type PreviewHandler struct {
	newSource func() capture.Source
	sampleFPS float64
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(newSource func() capture.Source, sampleFPS float64) *PreviewHandler {
	return &PreviewHandler{newSource: newSource, sampleFPS: sampleFPS}
}

// ServeHTTP handles GET /api/preview?video=PATH[&t=SECONDS].
func (h *PreviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	video := r.URL.Query().Get("video")
	if video == "" {
		http.Error(w, "video parameter is required", http.StatusBadRequest)
		return
	}

	src := h.newSource()
	if err := src.Open(video); err != nil {
		http.Error(w, "Failed to open video", http.StatusNotFound)
		return
	}
	defer src.Close()

	if ts := r.URL.Query().Get("t"); ts != "" {
		seconds, err := strconv.ParseFloat(ts, 64)
		if err != nil || seconds < 0 {
			http.Error(w, "invalid t parameter", http.StatusBadRequest)
			return
		}
		h.still(w, src, time.Duration(seconds*float64(time.Second)))
		return
	}
	h.stream(w, r, src)
}

func (h *PreviewHandler) still(w http.ResponseWriter, src capture.Source, t time.Duration) {
	frame, err := src.ReadAt(t)
	if err != nil {
		if errors.Is(err, capture.ErrNoFrame) {
			http.Error(w, "No frame at that time", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to read frame", http.StatusInternalServerError)
		return
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	frame.Close()
	if err != nil {
		http.Error(w, "Failed to encode frame", http.StatusInternalServerError)
		return
	}
	defer buf.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.GetBytes())
}

func (h *PreviewHandler) stream(w http.ResponseWriter, r *http.Request, src capture.Source) {
	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for _, t := range capture.SampleTimes(src.FrameCount(), src.FPS(), h.sampleFPS) {
		select {
		case <-r.Context().Done():
			return
		default:
		}

		frame, err := src.ReadAt(t)
		if err != nil {
			return
		}

		buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
		frame.Close()
		if err != nil {
			continue
		}

		fmt.Fprintf(w, "--frame\r\n")
		fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
		fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", buf.Len())
		w.Write(buf.GetBytes())
		fmt.Fprintf(w, "\r\n")
		buf.Close()

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}
