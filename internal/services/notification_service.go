package services

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/containrrr/shoutrrr"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Wikid82/threatlens/internal/logger"
	"github.com/Wikid82/threatlens/internal/metrics"
	"github.com/Wikid82/threatlens/internal/models"
	"github.com/Wikid82/threatlens/internal/risk"
	"github.com/Wikid82/threatlens/internal/util"
)

var ErrNotificationNotFound = errors.New("notification not found")

// maxListedAlerts bounds the alert lines of one external message.
const maxListedAlerts = 10

// NotificationService keeps in-app notifications for high-risk alerts and
// forwards a digest to an external service (Slack, Discord, SMTP, generic
// webhooks...) through shoutrrr when a URL is configured.
type NotificationService struct {
	DB  *gorm.DB
	URL string

	send func(url, message string) error
	wg   sync.WaitGroup
}

func NewNotificationService(db *gorm.DB, url string) *NotificationService {
	return &NotificationService{DB: db, URL: url, send: shoutrrr.Send}
}

// ValidateURL checks that a shoutrrr URL names a known service.
func ValidateURL(url string) error {
	if url == "" {
		return nil
	}
	if _, err := shoutrrr.CreateSender(url); err != nil {
		return fmt.Errorf("invalid notification url: %w", err)
	}
	return nil
}

// Internal Notifications (DB)

func (s *NotificationService) Create(nType models.NotificationType, title, message string) (*models.Notification, error) {
	notification := &models.Notification{
		Type:    nType,
		Title:   title,
		Message: message,
	}
	result := s.DB.Create(notification)
	return notification, result.Error
}

func (s *NotificationService) List(unreadOnly bool, limit int) ([]models.Notification, error) {
	var notifications []models.Notification
	query := s.DB.Order("created_at desc").Limit(pageSize(limit))
	if unreadOnly {
		query = query.Where("read = ?", false)
	}
	result := query.Find(&notifications)
	return notifications, result.Error
}

func (s *NotificationService) MarkAsRead(id string) error {
	res := s.DB.Model(&models.Notification{}).Where("id = ?", id).Update("read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := s.DB.Model(&models.Notification{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotificationNotFound
		}
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead() error {
	return s.DB.Model(&models.Notification{}).Where("read = ?", false).Update("read", true).Error
}

// NotifyAlerts stores one notification per High alert and dispatches a single
// external digest. Medium alerts are left to the dashboard.
func (s *NotificationService) NotifyAlerts(alerts []AlertView) (int, error) {
	var high []AlertView
	for _, a := range alerts {
		if a.RiskLevel == risk.High {
			high = append(high, a)
		}
	}
	if len(high) == 0 {
		return 0, nil
	}

	rows := make([]models.Notification, len(high))
	for i, a := range high {
		rows[i] = models.Notification{
			Type:          models.NotificationTypeAlert,
			Title:         fmt.Sprintf("High risk activity for %s", a.UserID),
			Message:       alertMessage(a),
			UserID:        a.UserID,
			ActivityLogID: a.ID,
			RiskScore:     a.RiskScore,
		}
	}
	if err := s.DB.CreateInBatches(&rows, insertBatchSize).Error; err != nil {
		return 0, fmt.Errorf("store notifications: %w", err)
	}

	s.dispatch(digest(high))
	return len(rows), nil
}

// dispatch sends asynchronously so a slow provider never holds up analysis.
func (s *NotificationService) dispatch(message string) {
	if s.URL == "" || s.send == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.send(s.URL, message)
		metrics.IncNotification(err == nil)
		if err != nil {
			logger.Log().WithError(err).Warn("failed to send alert notification")
		}
	}()
}

// Wait blocks until in-flight external notifications have finished.
func (s *NotificationService) Wait() {
	s.wg.Wait()
}

func alertMessage(a AlertView) string {
	msg := a.Summary
	if len(a.Explanation) > 0 {
		msg += ": " + strings.Join(a.Explanation, "; ")
	}
	return msg
}

func digest(high []AlertView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ThreatLens: %d high risk alert(s)\n", len(high))
	for i, a := range high {
		if i == maxListedAlerts {
			fmt.Fprintf(&b, "... and %d more\n", len(high)-maxListedAlerts)
			break
		}
		fmt.Fprintf(&b, "- %s (%s, score %.1f): %s\n",
			util.Clip(a.UserID, 64), util.Clip(a.LoginLocation, 64), a.RiskScore, strings.Join(a.Explanation, "; "))
	}
	logger.WithFields(logrus.Fields{"alerts": len(high)}).Debug("built alert digest")
	return b.String()
}
