package scanning

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

func blankImage() image.Image {
	return image.NewGray(image.Rect(0, 0, 4, 4))
}

var _ = Describe("Tesseract", func() {
	var (
		tmpDir  string
		cmdPath string
		engine  *Tesseract
		text    string
		err     error
	)

	writeScript := func(body string) {
		cmdPath = filepath.Join(tmpDir, "fake-tesseract")
		Expect(os.WriteFile(cmdPath, []byte("#!/bin/sh\n"+body), 0o755)).To(Succeed())
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		writeScript("cat > /dev/null\necho \"args: $1 $2 $3 $4\"\necho 'TOTAL $5.00'\n")
	})

	JustBeforeEach(func() {
		engine, err = NewTesseract(cmdPath, "deu")
		Expect(err).NotTo(HaveOccurred())
		text, err = engine.RecognizeText(context.Background(), blankImage())
	})

	When("the binary succeeds", func() {
		It("returns its output", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("TOTAL $5.00"))
		})

		It("reads from stdin, writes to stdout, and passes the language", func() {
			Expect(text).To(HavePrefix("args: stdin stdout -l deu"))
		})
	})

	When("the binary exits with an error", func() {
		BeforeEach(func() {
			writeScript("cat > /dev/null\necho 'Failed loading language' >&2\nexit 1\n")
		})

		It("returns the error with stderr attached", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Failed loading language"))
		})
	})

	When("the binary does not exist", func() {
		BeforeEach(func() {
			cmdPath = filepath.Join(tmpDir, "no-such-tesseract")
		})

		It("returns an error", func() {
			Expect(err).To(HaveOccurred())
		})
	})

	It("defaults the command and language", func() {
		t, newErr := NewTesseract("", "")
		Expect(newErr).NotTo(HaveOccurred())
		Expect(t.cmdPath).To(Equal("tesseract"))
		Expect(t.lang).To(Equal("eng"))
		Expect(t.Name()).To(Equal("tesseract"))
	})
})

var _ = Describe("Ollama", func() {
	var (
		server *ghttp.Server
		engine *Ollama
		text   string
		err    error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		engine, err = NewOllama(server.URL()+"/", "qwen2-vl")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		text, err = engine.RecognizeText(context.Background(), blankImage())
	})

	When("the model answers", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					var req ollamaChatRequest
					Expect(json.NewDecoder(r.Body).Decode(&req)).To(Succeed())
					Expect(req.Model).To(Equal("qwen2-vl"))
					Expect(req.Stream).To(BeFalse())
					Expect(req.Messages).To(HaveLen(2))
					Expect(req.Messages[1].Images).To(HaveLen(1))
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: "```\nCORNER STORE\nTOTAL 3.00\n```"},
					Done:    true,
				}),
			))
		})

		It("returns the transcript without markdown fences", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(Equal("CORNER STORE\nTOTAL 3.00"))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns the error", func() {
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("status 500"))
			Expect(err.Error()).To(ContainSubstring("model not loaded"))
		})
	})
})

var _ = Describe("cleanTranscript", func() {
	DescribeTable("stripping fences",
		func(input, expected string) {
			Expect(cleanTranscript(input)).To(Equal(expected))
		},
		Entry("plain text", "  STORE\nTOTAL 1.00 ", "STORE\nTOTAL 1.00"),
		Entry("fenced with language", "```text\nSTORE\n```", "STORE"),
		Entry("bare fence", "```", ""),
	)
})

// blockingRecognizer records how many calls run at once
type blockingRecognizer struct {
	mu      sync.Mutex
	active  int
	peak    int
	release chan struct{}
}

func (b *blockingRecognizer) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	b.mu.Lock()
	b.active++
	if b.active > b.peak {
		b.peak = b.active
	}
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.active--
	b.mu.Unlock()
	return "ok", nil
}

func (b *blockingRecognizer) Name() string { return "blocking" }
func (b *blockingRecognizer) Close() error { return nil }

func (b *blockingRecognizer) peakCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.peak
}

var _ = Describe("Pool", func() {
	It("never runs more calls than its size", func() {
		engine := &blockingRecognizer{release: make(chan struct{})}
		pool := NewPool(engine, 2)

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer GinkgoRecover()
				text, err := pool.RecognizeText(context.Background(), blankImage())
				Expect(err).NotTo(HaveOccurred())
				Expect(text).To(Equal("ok"))
			}()
		}

		Eventually(engine.peakCalls).Should(Equal(2))
		Consistently(engine.peakCalls, 50*time.Millisecond).Should(Equal(2))
		close(engine.release)
		wg.Wait()
	})

	It("gives up when the context ends while waiting", func() {
		engine := &blockingRecognizer{release: make(chan struct{})}
		pool := NewPool(engine, 1)

		go func() {
			_, _ = pool.RecognizeText(context.Background(), blankImage())
		}()
		Eventually(engine.peakCalls).Should(Equal(1))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := pool.RecognizeText(ctx, blankImage())
		Expect(err).To(MatchError(context.DeadlineExceeded))

		close(engine.release)
	})

	It("reports and closes the wrapped engine", func() {
		engine := &mockRecognizer{}
		pool := NewPool(engine, 0)
		Expect(pool.Name()).To(Equal("mock"))
		Expect(pool.Close()).To(Succeed())
		Expect(engine.closed).To(BeTrue())
	})
})

var _ = Describe("DecodeImage", func() {
	It("decodes a PNG", func() {
		path := writePNG(GinkgoT().TempDir(), "r.png")
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		img, err := DecodeImage(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(img.Bounds().Dx()).To(Equal(8))
	})

	It("rejects empty data", func() {
		_, err := DecodeImage(nil)
		Expect(err).To(HaveOccurred())
	})

	It("rejects unknown formats", func() {
		_, err := DecodeImage([]byte("hello world"))
		Expect(err).To(MatchError(ErrUnsupportedFormat))
	})

	DescribeTable("detecting HEIC by its ftyp brand",
		func(header []byte, expected bool) {
			Expect(isHEICFormat(header)).To(Equal(expected))
		},
		Entry("heic brand", []byte("\x00\x00\x00\x18ftypheic"), true),
		Entry("mif1 brand", []byte("\x00\x00\x00\x18ftypmif1"), true),
		Entry("mp4 brand", []byte("\x00\x00\x00\x18ftypisom"), false),
		Entry("too short", []byte("ftyp"), false),
	)

	It("detects PDFs by magic", func() {
		Expect(isPDF([]byte("%PDF-1.7\n"))).To(BeTrue())
		Expect(isPDF([]byte("PK\x03\x04"))).To(BeFalse())
	})
})

var _ = Describe("NewEngine", func() {
	It("defaults to tesseract", func() {
		engine, err := NewEngine(EngineConfig{})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Name()).To(Equal("tesseract"))
	})

	It("builds an ollama engine", func() {
		engine, err := NewEngine(EngineConfig{Kind: EngineOllama, OllamaURL: "http://localhost:11434/", OllamaModel: "llava"})
		Expect(err).NotTo(HaveOccurred())
		Expect(engine.Name()).To(Equal("ollama"))
	})

	It("requires a gemini key", func() {
		_, err := NewEngine(EngineConfig{Kind: EngineGemini})
		Expect(err).To(MatchError(ContainSubstring("api key is required")))
	})

	It("rejects unknown engines", func() {
		_, err := NewEngine(EngineConfig{Kind: "abbyy"})
		Expect(err).To(MatchError(ContainSubstring(`invalid ocr engine "abbyy"`)))
	})
})
