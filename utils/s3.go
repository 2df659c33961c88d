package utils

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"go-ao3/config"
	"go-ao3/models"
)

// WorkExporter ships completed downloads to S3-compatible storage as a
// single self-contained HTML file per work.
type WorkExporter struct {
	client *s3.S3
	bucket string
}

func NewWorkExporter(cfg *config.Config) (*WorkExporter, error) {
	s3Config := &aws.Config{
		Credentials: credentials.NewStaticCredentials(
			cfg.S3AccessKey,
			cfg.S3SecretKey,
			""),
		Endpoint: aws.String(cfg.S3Endpoint),
		Region:   aws.String("sgp1"),
	}

	sess, err := session.NewSession(s3Config)
	if err != nil {
		return nil, fmt.Errorf("initializing s3 session: %w", err)
	}

	return &WorkExporter{client: s3.New(sess), bucket: cfg.S3Bucket}, nil
}

func (e *WorkExporter) ExportWork(work *models.Work, chapters []models.Chapter) error {
	body := AssembleWorkHTML(work, chapters)
	key := fmt.Sprintf("works/%s.html", work.ID)

	_, err := e.client.PutObject(&s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(body)),
		ContentType: aws.String("text/html; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// AssembleWorkHTML renders a work and its chapters as one HTML document.
// Chapter content is stored as HTML already; the metadata is escaped.
func AssembleWorkHTML(work *models.Work, chapters []models.Chapter) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n</head>\n<body>\n", html.EscapeString(work.Title))
	fmt.Fprintf(&b, "<h1>%s</h1>\n", html.EscapeString(work.Title))
	fmt.Fprintf(&b, "<p>by %s</p>\n", html.EscapeString(work.Author))
	if work.Summary != "" {
		fmt.Fprintf(&b, "<blockquote>%s</blockquote>\n", html.EscapeString(work.Summary))
	}

	for _, chapter := range chapters {
		title := fmt.Sprintf("Chapter %d", chapter.Number)
		if chapter.Title != nil && *chapter.Title != "" {
			title = fmt.Sprintf("Chapter %d: %s", chapter.Number, *chapter.Title)
		}
		fmt.Fprintf(&b, "<h2>%s</h2>\n", html.EscapeString(title))
		b.WriteString(chapter.Content)
		b.WriteString("\n")
	}

	b.WriteString("</body>\n</html>\n")
	return b.String()
}
