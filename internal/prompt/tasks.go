package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Strategy builds the classifier prompt. manifest lists the session file
// names; it may be empty.
func Strategy(utterance, history string, manifest []string) string {
	if len(manifest) > 0 {
		quoted := make([]string, len(manifest))
		for i, name := range manifest {
			quoted[i] = "`" + name + "`"
		}
		history += "\nKonteks Sesi Saat Ini: Pengguna telah menambahkan file berikut: " + strings.Join(quoted, ", ") + "."
	}
	return fmt.Sprintf(`Analisis permintaan terakhir pengguna berdasarkan riwayat percakapan dan konteks sesi untuk menentukan tindakan terbaik.

Permintaan Terakhir Pengguna: "%s"

Riwayat & Konteks Sesi:
---
%s
---

Pilih HANYA SATU label berikut dan jawab dengan label itu saja:
- CONTEXT_SPECIFIC_QUESTION: pertanyaan yang langsung merujuk konten file atau tautan dalam sesi.
- CODE_GENERATION: permintaan eksplisit untuk menulis atau memberikan kode.
- NEEDS_RESEARCH: informasi baru yang jelas tidak ada di riwayat atau file.
- IMAGE_GENERATION: permintaan eksplisit untuk membuat gambar.
- ANSWER_IN_HISTORY: riwayat kemungkinan besar sudah berisi jawabannya.
- CASUAL_CONVERSATION: sapaan atau obrolan yang tidak memerlukan konteks.`, utterance, history)
}

// QueryExpansion asks for a JSON array of 5-6 search queries.
func QueryExpansion(utterance, history string) string {
	return fmt.Sprintf(`Anda adalah ahli strategi riset. Berdasarkan percakapan ini:
---
%s
---
Dan permintaan terakhir: "%s", buat daftar JSON berisi 5-6 kueri pencarian yang beragam dan spesifik untuk mendapatkan jawaban yang komprehensif. Contoh: ["kueri 1", "kueri 2"]`, history, utterance)
}

// QueryDedup asks the model to merge near-duplicate queries.
func QueryDedup(queries []string) string {
	encoded, _ := json.Marshal(queries)
	return fmt.Sprintf(`Dari daftar kueri pencarian JSON berikut, hapus atau gabungkan kueri yang sangat mirip dan kemungkinan menghasilkan hasil yang sama. Pertahankan 5-6 kueri terbaik. Kembalikan HANYA daftar JSON yang telah disempurnakan.

Daftar Awal: %s`, encoded)
}

// WithContext wraps the user question with assembled session context.
func WithContext(persona, sessionContext, utterance string) string {
	if persona == "" {
		persona = DefaultPersona
	}
	return fmt.Sprintf(`Gunakan informasi dari konteks tambahan berikut untuk menjawab pertanyaan pengguna secara lebih mendalam dan akurat. Tetaplah berperan sebagai %s, partner diskusi yang analitis.

--- KONTEKS TAMBAHAN (Dari File, Tautan, atau Pencarian Web) ---
%s
--- AKHIR KONTEKS ---

Pertanyaan Pengguna: %s`, persona, sessionContext, utterance)
}

// AntiRepetition replaces the final prompt for conversational labels so a
// repeated question gets a fresh answer.
func AntiRepetition(utterance string) string {
	return fmt.Sprintf(`Anda sedang dalam percakapan. Permintaan terakhir pengguna adalah: "%s"

TUGAS PENTING: Jawab permintaan pengguna, tetapi JANGAN hanya mengulang jawaban sebelumnya bila pertanyaannya sama atau serupa. Anggap pengguna belum puas dan menginginkan jawaban yang lebih baik atau lebih rinci. Jika memang tidak ada detail tambahan, nyatakan dengan kalimat yang baru.`, utterance)
}

// Summarize asks for a condensed narrative version of text.
func Summarize(text string) string {
	return fmt.Sprintf("Ringkas teks berikut menjadi jawaban yang padat dan naratif, pertahankan semua poin kunci:\n\n---\n%s\n---", text)
}

// ExtractDescription asks for the literal image description inside a request.
func ExtractDescription(request string) string {
	return fmt.Sprintf(`Ekstrak deskripsi gambar dari permintaan ini: "%s". Jawab HANYA dengan deskripsi gambarnya.`, request)
}

// Transcribe asks for a verbatim transcript of an audio clip.
const Transcribe = "Transkripsikan pesan suara ini kata demi kata dalam bahasa aslinya. Jawab HANYA dengan teks transkripsinya, tanpa komentar."

// DefaultVisionPrompt is used when a photo arrives without a caption.
const DefaultVisionPrompt = "Jelaskan gambar ini secara detail."

// VisionTurn is the text stored in history for an answered photo.
func VisionTurn(prompt string) string {
	return "(Menganalisis gambar) " + prompt
}
