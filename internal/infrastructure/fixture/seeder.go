// Package fixture seeds the in-memory ticketing database used in fixture
// mode. The schema mirrors the subset of the production ticket store that the
// chain resolver and detail fetcher read.
package fixture

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"chainalyzer/internal/shared/logger"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sw_tickets (
		ticketid INTEGER PRIMARY KEY,
		subject TEXT,
		tickettypetitle TEXT,
		ticketstatustitle TEXT,
		departmenttitle TEXT,
		fullname TEXT,
		dateline INTEGER,
		lastactivity INTEGER,
		resolutiondateline INTEGER,
		firstpost TEXT DEFAULT '',
		lastpost TEXT DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS sw_ticketlinkchains (
		ticketlinkchainid INTEGER PRIMARY KEY AUTOINCREMENT,
		ticketid INTEGER,
		chainhash TEXT,
		dateline INTEGER,
		ticketlinktypeid INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS sw_ticketposts (
		ticketpostid INTEGER PRIMARY KEY AUTOINCREMENT,
		ticketid INTEGER,
		contents TEXT,
		fullname TEXT,
		dateline INTEGER,
		isprivate INTEGER DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS sw_ticketnotes (
		ticketnoteid INTEGER PRIMARY KEY AUTOINCREMENT,
		linktypeid INTEGER,
		staffname TEXT,
		dateline INTEGER,
		note TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sw_customfields (
		customfieldid INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS sw_customfieldvalues (
		customfieldvalueid INTEGER PRIMARY KEY AUTOINCREMENT,
		customfieldid INTEGER,
		typeid INTEGER,
		fieldvalue TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS turnup_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT,
		dispatch_ticket_id TEXT,
		technician TEXT,
		service_date INTEGER,
		time_in INTEGER,
		time_out INTEGER,
		status TEXT,
		work_performed TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS dispatch_tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticket_id TEXT,
		customer TEXT,
		service_date INTEGER,
		service_type TEXT,
		status TEXT
	)`,
}

// Result describes one seeded mock chain.
type Result struct {
	ChainHash       string
	DispatchTickets []string
	TurnupTickets   []string
	ProjectTicket   string
	ExampleTicket   string
}

type Seeder struct {
	db     *gorm.DB
	rng    *rand.Rand
	logger logger.Interface
}

// NewSeeder builds a seeder. seed fixes the random stream so tests get
// reproducible chains; pass 0 for a time-based stream.
func NewSeeder(db *gorm.DB, seed int64, log logger.Interface) *Seeder {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Seeder{
		db:     db,
		rng:    rand.New(rand.NewSource(seed)),
		logger: log,
	}
}

// EnsureSchema creates the ticketing tables if they do not exist yet.
func (s *Seeder) EnsureSchema() error {
	for _, stmt := range schema {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create fixture schema: %w", err)
		}
	}
	return nil
}

// SeedChain creates one mock chain: numDispatch dispatch tickets, numTurnup
// turnup tickets each linked to a random dispatch, and a project-management
// ticket when the scenario is complex enough (more than one dispatch and more
// than two turnups). Returns the chain hash and an example ticket to query by.
func (s *Seeder) SeedChain(numDispatch, numTurnup int) (*Result, error) {
	if err := s.EnsureSchema(); err != nil {
		return nil, err
	}

	chainHash := strings.ToUpper(uuid.New().String())
	now := time.Now().Unix()

	result := &Result{ChainHash: chainHash}

	for i := 0; i < numDispatch; i++ {
		ticketID := 2000000 + s.rng.Intn(1000000)
		dept := pick(s.rng, "FST Accounting", "Dispatch", "Pro Services")
		created := now - int64(5+s.rng.Intn(26))*86400
		activity := created + int64(1+s.rng.Intn(10))*86400

		if err := s.insertTicket(ticketID, fmt.Sprintf("Test Dispatch %d: Installation at Customer Site", i+1),
			"Service Request", pick(s.rng, "Open", "In Progress", "Complete", "Pending"),
			dept, fmt.Sprintf("Customer %d", i+1), created, activity); err != nil {
			return nil, err
		}
		if err := s.insertLink(ticketID, chainHash, created); err != nil {
			return nil, err
		}
		if err := s.insertPost(ticketID,
			fmt.Sprintf("Initial dispatch request for service. Customer needs installation at site. This is a test dispatch ticket %d.", i+1),
			"Dispatcher Name", created); err != nil {
			return nil, err
		}
		if err := s.insertPost(ticketID,
			"Scheduled for next available technician. Will coordinate with customer for access.",
			"Coordinator Name", created+86400); err != nil {
			return nil, err
		}
		if err := s.insertDispatchTask(ticketID, fmt.Sprintf("Customer %d", i+1), created); err != nil {
			return nil, err
		}

		result.DispatchTickets = append(result.DispatchTickets, strconv.Itoa(ticketID))
	}

	for i := 0; i < numTurnup; i++ {
		ticketID := 3000000 + s.rng.Intn(1000000)
		dispatchID := result.DispatchTickets[s.rng.Intn(len(result.DispatchTickets))]

		var dispatchCreated int64
		s.db.Raw("SELECT dateline FROM sw_tickets WHERE ticketid = ?", dispatchID).Scan(&dispatchCreated)
		if dispatchCreated == 0 {
			dispatchCreated = now - 15*86400
		}

		created := dispatchCreated + int64(1+s.rng.Intn(5))*86400
		activity := created + int64(1+s.rng.Intn(10))*86400
		tech := "Tech " + pick(s.rng, "Alice", "Bob", "Charlie", "Diana")

		if err := s.insertTicket(ticketID, fmt.Sprintf("Turnup for Dispatch #%s", dispatchID),
			"Turnup", pick(s.rng, "Scheduled", "In Progress", "Complete", "Canceled"),
			"Turnups", tech, created, activity); err != nil {
			return nil, err
		}
		if err := s.insertLink(ticketID, chainHash, created); err != nil {
			return nil, err
		}
		if err := s.insertPost(ticketID,
			fmt.Sprintf("Technician scheduled for service call. Will arrive between 9am-12pm. This is turnup ticket %d for dispatch %s.", i+1, dispatchID),
			"Scheduler Name", created); err != nil {
			return nil, err
		}
		workResult := pick(s.rng,
			"Installed new equipment according to specifications. Customer signed off on work.",
			"Diagnosed and repaired fault in existing system. System is now operational.",
			"Could not complete all tasks due to missing parts. Follow-up visit needed.",
			"Site access issues delayed work completion. Rescheduling needed.")
		if err := s.insertPost(ticketID, "Work performed: "+workResult, tech, created+28800); err != nil {
			return nil, err
		}
		if err := s.insertTurnupTask(ticketID, dispatchID, tech, created, workResult); err != nil {
			return nil, err
		}

		result.TurnupTickets = append(result.TurnupTickets, strconv.Itoa(ticketID))
	}

	if numDispatch > 1 && numTurnup > 2 {
		projectID := 4000000 + s.rng.Intn(1000000)
		created := now - int64(20+s.rng.Intn(21))*86400
		activity := now - int64(1+s.rng.Intn(5))*86400

		if err := s.insertTicket(projectID, "Project Management for Multi-Phase Installation",
			"Project", "In Progress", "Turn up Projects", "Project Manager", created, activity); err != nil {
			return nil, err
		}
		if err := s.insertLink(projectID, chainHash, created); err != nil {
			return nil, err
		}
		if err := s.insertPost(projectID,
			"Project initialized for multi-phase installation. Will coordinate all dispatch and turnup tickets under this project.",
			"Project Manager", created); err != nil {
			return nil, err
		}
		related := strings.Join(append(append([]string{}, result.DispatchTickets...), result.TurnupTickets...), ", ")
		if err := s.insertPost(projectID,
			"Phase 1 of project in progress. Related tickets: "+related,
			"Project Manager", created+604800); err != nil {
			return nil, err
		}

		result.ProjectTicket = strconv.Itoa(projectID)
	}

	result.ExampleTicket = result.DispatchTickets[0]

	s.logger.Infow("mock chain seeded",
		"chain_hash", chainHash,
		"dispatch", len(result.DispatchTickets),
		"turnup", len(result.TurnupTickets),
		"project", result.ProjectTicket != "")

	return result, nil
}

func (s *Seeder) insertTicket(id int, subject, ticketType, status, dept, fullname string, created, activity int64) error {
	err := s.db.Exec(`
		INSERT INTO sw_tickets
		(ticketid, subject, tickettypetitle, ticketstatustitle, departmenttitle, fullname, dateline, lastactivity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, subject, ticketType, status, dept, fullname, created, activity).Error
	if err != nil {
		return fmt.Errorf("failed to insert ticket %d: %w", id, err)
	}
	return nil
}

func (s *Seeder) insertLink(ticketID int, chainHash string, dateline int64) error {
	err := s.db.Exec(`
		INSERT INTO sw_ticketlinkchains (ticketid, chainhash, dateline, ticketlinktypeid)
		VALUES (?, ?, ?, 2)`,
		ticketID, chainHash, dateline).Error
	if err != nil {
		return fmt.Errorf("failed to insert chain link for %d: %w", ticketID, err)
	}
	return nil
}

func (s *Seeder) insertPost(ticketID int, contents, fullname string, dateline int64) error {
	err := s.db.Exec(`
		INSERT INTO sw_ticketposts (ticketid, contents, fullname, dateline, isprivate)
		VALUES (?, ?, ?, ?, 0)`,
		ticketID, contents, fullname, dateline).Error
	if err != nil {
		return fmt.Errorf("failed to insert post for %d: %w", ticketID, err)
	}
	return nil
}

func (s *Seeder) insertTurnupTask(ticketID int, dispatchID, technician string, serviceDate int64, work string) error {
	err := s.db.Exec(`
		INSERT INTO turnup_tasks (ticket_id, dispatch_ticket_id, technician, service_date, time_in, time_out, status, work_performed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strconv.Itoa(ticketID), dispatchID, technician, serviceDate, serviceDate+32400, serviceDate+61200, "Complete", work).Error
	if err != nil {
		return fmt.Errorf("failed to insert turnup task for %d: %w", ticketID, err)
	}
	return nil
}

func (s *Seeder) insertDispatchTask(ticketID int, customer string, serviceDate int64) error {
	err := s.db.Exec(`
		INSERT INTO dispatch_tasks (ticket_id, customer, service_date, service_type, status)
		VALUES (?, ?, ?, ?, ?)`,
		strconv.Itoa(ticketID), customer, serviceDate, "Installation", "Booked").Error
	if err != nil {
		return fmt.Errorf("failed to insert dispatch task for %d: %w", ticketID, err)
	}
	return nil
}

func pick(rng *rand.Rand, options ...string) string {
	return options[rng.Intn(len(options))]
}
