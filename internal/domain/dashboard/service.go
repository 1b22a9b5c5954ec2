// Package dashboard aggregates the nurse and doctor landing views.
package dashboard

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/domain/identity"
)

const (
	recentLimit = 6
	alertLimit  = 3
	lastWeek    = 7 * 24 * time.Hour
)

// Profiles looks up the caller's name and hospital.
type Profiles interface {
	GetProfile(ctx context.Context, userID int64) (*identity.Profile, error)
}

type Service struct {
	repo     Repository
	profiles Profiles
	highRisk float64
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService builds the dashboards. highRisk is the confidence above which a
// lesion prediction counts as high risk.
func NewService(repo Repository, profiles Profiles, highRisk float64, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		highRisk: highRisk,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) NurseOverview(ctx context.Context, nurseID int64) (*NurseOverview, error) {
	p, err := s.profiles.GetProfile(ctx, nurseID)
	if err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return nil, identity.ErrNoHospital
		}
		return nil, err
	}
	if p.HospitalID == nil {
		return nil, identity.ErrNoHospital
	}
	hospitalID := *p.HospitalID

	midnight := s.now().Truncate(24 * time.Hour)
	counts, err := s.repo.NurseCounts(ctx, hospitalID, midnight)
	if err != nil {
		return nil, err
	}
	recent, err := s.repo.NurseRecent(ctx, hospitalID, recentLimit)
	if err != nil {
		return nil, err
	}
	return &NurseOverview{
		HospitalName:   p.HospitalName,
		NurseCounts:    *counts,
		RecentPatients: recent,
	}, nil
}

func (s *Service) doctorName(ctx context.Context, doctorID int64) (string, error) {
	p, err := s.profiles.GetProfile(ctx, doctorID)
	if err != nil {
		return "", err
	}
	return p.FirstName + " " + p.LastName, nil
}

func (s *Service) DoctorDashboard(ctx context.Context, doctorID int64) (*DoctorDashboard, error) {
	name, err := s.doctorName(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	d := &DoctorDashboard{DoctorID: doctorID, DoctorName: name}

	if d.StatusBreakdown, err = s.repo.StatusBreakdown(ctx, doctorID); err != nil {
		return nil, err
	}
	for _, n := range d.StatusBreakdown {
		d.TotalAssignedPatients += n
	}

	summary, err := s.repo.PredictionSummary(ctx, doctorID, s.highRisk)
	if err != nil {
		return nil, err
	}
	d.PredictionSummary = *summary

	if d.Alerts, err = s.repo.Alerts(ctx, doctorID, s.highRisk, alertLimit); err != nil {
		return nil, err
	}

	demo, err := s.repo.Demographics(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	d.Demographics = *demo

	avg, err := s.repo.AvgDaysToPrediction(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if avg != nil {
		rounded := math.Round(*avg*100) / 100
		d.WorkloadStats.AvgDaysToPrediction = &rounded
	}
	if d.WorkloadStats.PatientsAddedLastWeek, err = s.repo.CountAddedSince(ctx, doctorID, s.now().Add(-lastWeek)); err != nil {
		return nil, err
	}

	if d.RecentPatients, err = s.repo.DoctorRecent(ctx, doctorID, recentLimit); err != nil {
		return nil, err
	}

	s.logger.Debug().Int64("doctor_id", doctorID).Int("assigned", d.TotalAssignedPatients).Msg("doctor dashboard built")
	return d, nil
}

func (s *Service) AssignedPatients(ctx context.Context, doctorID int64) (*AssignedPatients, error) {
	name, err := s.doctorName(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	patients, err := s.repo.AssignedPatients(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return &AssignedPatients{DoctorID: doctorID, DoctorName: name, AssignedPatients: patients}, nil
}
