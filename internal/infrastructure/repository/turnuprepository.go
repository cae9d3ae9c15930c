package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"chainalyzer/internal/domain/chain"
	"chainalyzer/internal/shared/logger"
)

type turnupTaskRow struct {
	TicketID      string `gorm:"column:ticket_id"`
	DispatchID    string `gorm:"column:dispatch_ticket_id"`
	Technician    string `gorm:"column:technician"`
	ServiceDate   *int64 `gorm:"column:service_date"`
	TimeIn        *int64 `gorm:"column:time_in"`
	TimeOut       *int64 `gorm:"column:time_out"`
	Status        string `gorm:"column:status"`
	WorkPerformed string `gorm:"column:work_performed"`
}

type dispatchTaskRow struct {
	TicketID    string `gorm:"column:ticket_id"`
	Customer    string `gorm:"column:customer"`
	ServiceDate *int64 `gorm:"column:service_date"`
	ServiceType string `gorm:"column:service_type"`
	Status      string `gorm:"column:status"`
}

// TurnupRepositoryImpl reads turnup-task and dispatch records from the
// cross-system field operations store.
type TurnupRepositoryImpl struct {
	db     *gorm.DB
	logger logger.Interface
}

func NewTurnupRepository(db *gorm.DB, log logger.Interface) chain.AuxiliarySource {
	return &TurnupRepositoryImpl{db: db, logger: log}
}

func (r *TurnupRepositoryImpl) TurnupsForTickets(ctx context.Context, ticketIDs []string) (map[string]*chain.TurnupDetail, error) {
	if len(ticketIDs) == 0 {
		return map[string]*chain.TurnupDetail{}, nil
	}

	var rows []turnupTaskRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			ticket_id,
			dispatch_ticket_id,
			technician,
			service_date,
			time_in,
			time_out,
			status,
			work_performed
		FROM turnup_tasks
		WHERE ticket_id IN ?`, ticketIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch turnup tasks: %w", err)
	}

	details := make(map[string]*chain.TurnupDetail, len(rows))
	for _, row := range rows {
		// One task per ticket; a second row for the same ticket is upstream
		// duplication and the first one wins.
		if _, ok := details[row.TicketID]; ok {
			r.logger.Warnw("duplicate turnup task dropped", "ticket_id", row.TicketID)
			continue
		}
		details[row.TicketID] = &chain.TurnupDetail{
			TicketID:      row.TicketID,
			DispatchID:    row.DispatchID,
			Technician:    row.Technician,
			ServiceDate:   epochPtrToTime(row.ServiceDate),
			TimeIn:        epochPtrToTime(row.TimeIn),
			TimeOut:       epochPtrToTime(row.TimeOut),
			Status:        row.Status,
			WorkPerformed: row.WorkPerformed,
		}
	}
	return details, nil
}

func (r *TurnupRepositoryImpl) DispatchesForTickets(ctx context.Context, ticketIDs []string) (map[string]*chain.DispatchDetail, error) {
	if len(ticketIDs) == 0 {
		return map[string]*chain.DispatchDetail{}, nil
	}

	var rows []dispatchTaskRow
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			ticket_id,
			customer,
			service_date,
			service_type,
			status
		FROM dispatch_tasks
		WHERE ticket_id IN ?`, ticketIDs).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dispatch tasks: %w", err)
	}

	details := make(map[string]*chain.DispatchDetail, len(rows))
	for _, row := range rows {
		if _, ok := details[row.TicketID]; ok {
			r.logger.Warnw("duplicate dispatch task dropped", "ticket_id", row.TicketID)
			continue
		}
		details[row.TicketID] = &chain.DispatchDetail{
			TicketID:    row.TicketID,
			Customer:    row.Customer,
			ServiceDate: epochPtrToTime(row.ServiceDate),
			ServiceType: row.ServiceType,
			Status:      row.Status,
		}
	}
	return details, nil
}

func epochPtrToTime(epoch *int64) *time.Time {
	if epoch == nil || *epoch == 0 {
		return nil
	}
	t := time.Unix(*epoch, 0)
	return &t
}
