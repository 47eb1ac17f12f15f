package expense

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		baseDir string
		store   *LocalStorage
	)

	BeforeEach(func() {
		baseDir = filepath.Join(GinkgoT().TempDir(), "uploads")
		var err error
		store, err = NewLocalStorage(baseDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("an uploaded receipt", func() {
		const name = "3f2a9c1e_corner store.jpg"

		var (
			saved string
			err   error
		)

		JustBeforeEach(func() {
			saved, err = store.Save(name, []byte("jpeg bytes"))
		})

		It("is stored under its id-prefixed name", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal(name))
			Expect(filepath.Join(baseDir, name)).To(BeARegularFile())
		})

		It("can be read back by the extractor through Path", func() {
			data, readErr := os.ReadFile(store.Path(saved))
			Expect(readErr).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg bytes")))
		})

		It("is served back by Get", func() {
			data, getErr := store.Get(saved)
			Expect(getErr).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg bytes")))
		})

		When("a later scan reuses the name", func() {
			JustBeforeEach(func() {
				_, err = store.Save(name, []byte("rescanned"))
			})

			It("replaces the earlier upload", func() {
				Expect(err).NotTo(HaveOccurred())
				data, getErr := store.Get(name)
				Expect(getErr).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("rescanned"))
			})
		})
	})

	Describe("a statement upload", func() {
		It("is removed once the import is done", func() {
			saved, err := store.Save("9b1d_bank.csv", []byte("Date,Amount\n01/02/2024,5.00\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Path(saved)).To(BeARegularFile())

			Expect(store.Delete(saved)).To(Succeed())
			Expect(store.Path(saved)).NotTo(BeAnExistingFile())

			entries, err := os.ReadDir(baseDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})

		It("cannot be removed twice", func() {
			saved, err := store.Save("9b1d_bank.csv", []byte("Date,Amount\n"))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Delete(saved)).To(Succeed())
			Expect(store.Delete(saved)).To(MatchError(ContainSubstring("deleting file")))
		})
	})

	Describe("names with directory components", func() {
		DescribeTable("Path stays inside the storage directory",
			func(name, expected string) {
				Expect(store.Path(name)).To(Equal(filepath.Join(baseDir, expected)))
			},
			Entry("plain name", "abc_receipt.png", "abc_receipt.png"),
			Entry("parent traversal", "../../etc/passwd", "passwd"),
			Entry("absolute path", "/tmp/abc_receipt.png", "abc_receipt.png"),
			Entry("nested directory", "2024/03/abc_bank.csv", "abc_bank.csv"),
		)

		It("saves only the base name", func() {
			saved, err := store.Save("../../outside.csv", []byte("x"))
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal("outside.csv"))
			Expect(filepath.Join(filepath.Dir(filepath.Dir(baseDir)), "outside.csv")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(baseDir, "outside.csv")).To(BeARegularFile())
		})

		It("reads and deletes by the base name", func() {
			_, err := store.Save("abc_receipt.png", []byte("png"))
			Expect(err).NotTo(HaveOccurred())

			data, err := store.Get("../abc_receipt.png")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("png"))

			Expect(store.Delete("nested/abc_receipt.png")).To(Succeed())
			Expect(filepath.Join(baseDir, "abc_receipt.png")).NotTo(BeAnExistingFile())
		})
	})

	Describe("a file that was never uploaded", func() {
		It("reports a read error from Get", func() {
			_, err := store.Get("missing_receipt.png")
			Expect(err).To(MatchError(ContainSubstring("reading file")))
			Expect(err).To(MatchError(os.ErrNotExist))
		})
	})

	Describe("NewLocalStorage", func() {
		It("creates nested upload directories", func() {
			dir := filepath.Join(GinkgoT().TempDir(), "data", "uploads")
			_, err := NewLocalStorage(dir)
			Expect(err).NotTo(HaveOccurred())
			Expect(dir).To(BeADirectory())
		})

		It("fails when the path is an existing file", func() {
			file := filepath.Join(GinkgoT().TempDir(), "uploads")
			Expect(os.WriteFile(file, []byte("x"), 0o644)).To(Succeed())

			_, err := NewLocalStorage(file)
			Expect(err).To(MatchError(ContainSubstring("creating storage directory")))
		})
	})
})
