package scanning

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expense-tracker/internal/model"
)

// mockRecognizer is a mock implementation of TextRecognizer
type mockRecognizer struct {
	text   string
	err    error
	calls  int
	closed bool
}

func (m *mockRecognizer) RecognizeText(ctx context.Context, img image.Image) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func (m *mockRecognizer) Name() string {
	return "mock"
}

func (m *mockRecognizer) Close() error {
	m.closed = true
	return nil
}

// writePNG writes a small solid image and returns its path
func writePNG(dir, name string) string {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.White)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	Expect(err).NotTo(HaveOccurred())
	defer f.Close()
	Expect(png.Encode(f, img)).To(Succeed())
	return path
}

var _ = Describe("Extractor", func() {
	var (
		tmpDir     string
		recognizer *mockRecognizer
		extractor  *Extractor
		path       string
		candidate  *model.CandidateExpense
		err        error
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		recognizer = &mockRecognizer{
			text: "  Corner Store\n03/04/2024 12:01\nMILK 3.49\nTOTAL $12.34\n",
		}
		extractor = NewExtractor(recognizer)
		path = writePNG(tmpDir, "receipt.png")
	})

	JustBeforeEach(func() {
		candidate, err = extractor.Extract(context.Background(), path)
	})

	When("every field is recovered", func() {
		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should build the candidate expense", func() {
			Expect(candidate.Amount.StringFixed(2)).To(Equal("12.34"))
			Expect(candidate.Description).To(Equal("Corner Store"))
			Expect(candidate.OccurredOn).To(BeTemporally("==", time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)))
			Expect(candidate.Source).To(Equal(model.SourceReceipt))
		})

		It("should leave the file untouched", func() {
			Expect(path).To(BeAnExistingFile())
		})
	})

	When("the file does not exist", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "missing.png")
		})

		It("returns an ImageDecodeError", func() {
			var decodeErr *ImageDecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(decodeErr.Path).To(Equal(path))
			Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		})

		It("should not call the OCR engine", func() {
			Expect(recognizer.calls).To(BeZero())
		})
	})

	When("the file is not an image", func() {
		BeforeEach(func() {
			path = filepath.Join(tmpDir, "notes.txt")
			Expect(os.WriteFile(path, []byte("just some text"), 0o644)).To(Succeed())
		})

		It("returns an ImageDecodeError for an unsupported format", func() {
			var decodeErr *ImageDecodeError
			Expect(errors.As(err, &decodeErr)).To(BeTrue())
			Expect(errors.Is(err, ErrUnsupportedFormat)).To(BeTrue())
		})
	})

	When("the OCR engine fails", func() {
		var engineErr error

		BeforeEach(func() {
			engineErr = errors.New("engine unavailable")
			recognizer.err = engineErr
		})

		It("returns an OcrEngineError wrapping the cause", func() {
			var ocrErr *OcrEngineError
			Expect(errors.As(err, &ocrErr)).To(BeTrue())
			Expect(ocrErr.Engine).To(Equal("mock"))
			Expect(err).To(MatchError(engineErr))
		})

		It("should not retry", func() {
			Expect(recognizer.calls).To(Equal(1))
		})
	})

	When("the OCR engine returns no text", func() {
		BeforeEach(func() {
			recognizer.text = ""
		})

		It("returns an IncompleteExtractionError with every field absent", func() {
			var incomplete *IncompleteExtractionError
			Expect(errors.As(err, &incomplete)).To(BeTrue())
			Expect(incomplete.Partial.Amount.Valid).To(BeFalse())
			Expect(incomplete.Partial.OccurredOn).To(BeNil())
			Expect(incomplete.Partial.Description).To(BeEmpty())
			Expect(incomplete.RawText).To(BeEmpty())
			Expect(incomplete.Missing()).To(Equal([]string{"amount", "date"}))
		})

		It("should not build a candidate", func() {
			Expect(candidate).To(BeNil())
		})
	})

	When("only the total is found", func() {
		BeforeEach(func() {
			recognizer.text = "Gas Station\nTOTAL 40.00"
		})

		It("returns the partial fields and the raw text", func() {
			var incomplete *IncompleteExtractionError
			Expect(errors.As(err, &incomplete)).To(BeTrue())
			Expect(incomplete.Partial.Amount.Decimal.StringFixed(2)).To(Equal("40.00"))
			Expect(incomplete.Partial.Description).To(Equal("Gas Station"))
			Expect(incomplete.RawText).To(Equal("Gas Station\nTOTAL 40.00"))
			Expect(incomplete.Missing()).To(Equal([]string{"date"}))
			Expect(err.Error()).To(ContainSubstring("missing date"))
		})
	})
})
