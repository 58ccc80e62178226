package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied  ErrCode = "PERMISSION_DENIED"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrInvalidExamToken   ErrCode = "INVALID_EXAM_TOKEN"
	ErrExamInactive       ErrCode = "EXAM_INACTIVE"
	ErrExamNotStarted     ErrCode = "EXAM_NOT_STARTED"
	ErrAlreadyCompleted   ErrCode = "ALREADY_COMPLETED"
	ErrNotJoined          ErrCode = "EXAM_NOT_JOINED"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrSessionNotActive   ErrCode = "SESSION_NOT_ACTIVE"
	ErrSessionSuspended   ErrCode = "SESSION_SUSPENDED"
	ErrConfirmRequired    ErrCode = "CONFIRMATION_REQUIRED"
	ErrSubmissionPending  ErrCode = "SUBMISSION_PENDING"
	ErrFullscreenRejected ErrCode = "FULLSCREEN_REJECTED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrNetwork  ErrCode = "NETWORK_ERROR"
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrAdminAccessOnly:
		return "Sumber daya ini terbatas untuk administrator."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrInvalidExamToken:
		return "Token ujian tidak valid."
	case ErrExamInactive:
		return "Ujian ini tidak aktif."
	case ErrExamNotStarted:
		return "Ujian belum dimulai."
	case ErrAlreadyCompleted:
		return "Anda sudah menyelesaikan ujian ini."
	case ErrNotJoined:
		return "Anda belum bergabung ke ujian ini."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki soal."
	case ErrSessionNotActive:
		return "Sesi ujian tidak aktif."
	case ErrSessionSuspended:
		return "Ujian dijeda. Kembali ke layar penuh untuk melanjutkan."
	case ErrConfirmRequired:
		return "Konfirmasi penyelesaian ujian diperlukan."
	case ErrSubmissionPending:
		return "Pengiriman jawaban sedang diproses."
	case ErrFullscreenRejected:
		return "Mode layar penuh ditolak oleh peramban."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrNetwork:
		return "Gagal terhubung ke server. Silakan coba lagi."
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
