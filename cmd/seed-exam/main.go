package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/database"
	"github.com/stemsi/exstem-cbt/internal/logger"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/repository"
	"github.com/stemsi/exstem-cbt/internal/service"
)

type demoQuestion struct {
	prompt  string
	options [5]string
	correct model.OptionLabel
}

var demoQuestions = []demoQuestion{
	{"Berapakah hasil dari 12 × 8?", [5]string{"86", "96", "106", "98", "88"}, model.OptionB},
	{"Ibu kota provinsi Jawa Timur adalah", [5]string{"Malang", "Kediri", "Surabaya", "Madiun", "Jember"}, model.OptionC},
	{"Protokol yang digunakan untuk mengirim email adalah", [5]string{"HTTP", "FTP", "SSH", "SMTP", "DNS"}, model.OptionD},
	{"Satuan SI untuk gaya adalah", [5]string{"Newton", "Joule", "Watt", "Pascal", "Coulomb"}, model.OptionA},
	{"Bilangan biner dari 10 desimal adalah", [5]string{"1100", "1001", "1110", "0110", "1010"}, model.OptionE},
}

func main() {
	var (
		title    string
		token    string
		duration int
		students int
	)
	flag.StringVar(&title, "title", "Ujian Demo CBT", "Exam title")
	flag.StringVar(&token, "token", "DEMO24", "Exam access token")
	flag.IntVar(&duration, "duration", 30, "Duration in minutes")
	flag.IntVar(&students, "students", 3, "Number of demo student tokens to print")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	authService := service.NewAuthService(cfg)

	exam := &model.ExamConfig{
		Title:            title,
		Subject:          "Umum",
		DurationMinutes:  duration,
		StartsAt:         time.Now().Add(-time.Minute),
		ShuffleQuestions: true,
		ShuffleOptions:   true,
		Active:           true,
		AccessToken:      token,
	}
	if err := examRepo.Create(ctx, exam); err != nil {
		log.Fatal().Err(err).Msg("Failed to create exam")
	}
	log.Info().Str("exam_id", exam.ID.String()).Str("token", token).Msg("Exam created")

	for i, dq := range demoQuestions {
		q := &model.Question{
			ExamID:        exam.ID,
			Prompt:        dq.prompt,
			CorrectOption: dq.correct,
			OrderNum:      i + 1,
		}
		for j, text := range dq.options {
			q.Options = append(q.Options, model.Option{Label: model.CanonicalLabels[j], Text: text})
		}
		if err := questionRepo.Create(ctx, q); err != nil {
			log.Fatal().Err(err).Int("order", i+1).Msg("Failed to create question")
		}
	}
	log.Info().Int("count", len(demoQuestions)).Msg("Questions created")

	fmt.Println("=== Demo tokens ===")
	for id := 1; id <= students; id++ {
		tok, err := authService.GenerateStudentToken(id, fmt.Sprintf("Siswa Demo %d", id))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to sign student token")
		}
		fmt.Printf("student %d: %s\n", id, tok)
	}

	adminTok, err := authService.GenerateAdminToken(1, "Proktor Demo", model.PermissionCodes(model.AllPermissions))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to sign admin token")
	}
	fmt.Printf("admin: %s\n", adminTok)
}
