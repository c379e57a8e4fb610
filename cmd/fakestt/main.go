// Command fakestt is a local stand-in for the generic multipart transcription
// endpoint used by the "http" provider.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type transcriptionResponse struct {
	RequestID   string    `json:"request_id"`
	Text        string    `json:"text"`
	Confidence  float64   `json:"confidence"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

type fakeServer struct {
	text   string
	silent bool
	delay  time.Duration
	logger *slog.Logger
}

func (s *fakeServer) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Error reading audio file", http.StatusInternalServerError)
		return
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		http.Error(w, "Audio file is not a valid WAV", http.StatusBadRequest)
		return
	}

	duration, err := decoder.Duration()
	if err != nil {
		http.Error(w, "Error reading WAV duration", http.StatusBadRequest)
		return
	}

	s.logger.Info("Transcription request received",
		slog.String("request_id", r.FormValue("request_id")),
		slog.String("filename", header.Filename),
		slog.Int("audio_bytes", len(data)),
		slog.Int("sample_rate", int(decoder.SampleRate)),
		slog.Duration("duration", duration),
		slog.String("language", r.FormValue("language")),
	)

	time.Sleep(s.delay)

	if s.silent {
		http.Error(w, "No speech detected", http.StatusUnprocessableEntity)
		return
	}

	response := transcriptionResponse{
		RequestID:   r.FormValue("request_id"),
		Text:        s.text,
		Confidence:  0.95,
		Language:    r.FormValue("language"),
		Duration:    duration.Seconds(),
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func main() {
	addr := flag.String("addr", ":9000", "Listen address")
	text := flag.String("text", "안녕하세요, 테스트 음성입니다", "Text returned for every request")
	silent := flag.Bool("silent", false, "Answer every request with 422 (no speech)")
	delay := flag.Duration("delay", 200*time.Millisecond, "Simulated processing time")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	s := &fakeServer{text: *text, silent: *silent, delay: *delay, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/transcribe", s.handleTranscribe)

	logger.Info("Fake transcription server starting",
		slog.String("endpoint", fmt.Sprintf("http://localhost%s/transcribe", *addr)),
		slog.Bool("silent", *silent),
	)

	if err := http.ListenAndServe(*addr, r); err != nil {
		logger.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
