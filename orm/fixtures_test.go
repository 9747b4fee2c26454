package orm_test

import (
	"context"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/tabula/dbschema"
	"github.com/stokaro/tabula/orm"
)

type Doctor struct {
	ID        int
	FirstName string
	LastName  string

	Appointments *orm.LazyCollection[Appointment]
}

func (Doctor) DeclareSchema(b *orm.Builder[Doctor]) {
	b.Table("doctors")
	orm.Column(b, "ID", func(d *Doctor) *int { return &d.ID }).PrimaryKey()
	orm.Column(b, "FirstName", func(d *Doctor) *string { return &d.FirstName }).Named("first_name")
	orm.Column(b, "LastName", func(d *Doctor) *string { return &d.LastName }).Named("last_name")
	orm.HasMany(b, "Appointments", func(d *Doctor, l *orm.LazyCollection[Appointment]) { d.Appointments = l }, "doctor_id")
}

type Appointment struct {
	ID          int
	DoctorID    int
	Notes       *string
	ScheduledAt time.Time

	Doctor *orm.Lazy[Doctor]
}

func (Appointment) DeclareSchema(b *orm.Builder[Appointment]) {
	b.Table("appointments")
	orm.Column(b, "ID", func(a *Appointment) *int { return &a.ID }).PrimaryKey()
	orm.Column(b, "DoctorID", func(a *Appointment) *int { return &a.DoctorID }).
		Named("doctor_id").
		References(orm.EntityOf[Doctor]())
	orm.Column(b, "Notes", func(a *Appointment) **string { return &a.Notes })
	orm.Column(b, "ScheduledAt", func(a *Appointment) *time.Time { return &a.ScheduledAt }).Named("scheduled_at")
	orm.HasOne(b, "Doctor", func(a *Appointment, l *orm.Lazy[Doctor]) { a.Doctor = l }, "doctor_id")
}

// Tag has no primary key.
type Tag struct {
	Label string
}

func (Tag) DeclareSchema(b *orm.Builder[Tag]) {
	orm.Column(b, "Label", func(t *Tag) *string { return &t.Label })
}

type TwoKeys struct {
	A, B int
}

func (TwoKeys) DeclareSchema(b *orm.Builder[TwoKeys]) {
	orm.Column(b, "A", func(k *TwoKeys) *int { return &k.A }).PrimaryKey()
	orm.Column(b, "B", func(k *TwoKeys) *int { return &k.B }).PrimaryKey()
}

type Undeclared struct {
	X int
}

var testSchema = []string{
	`CREATE TABLE doctors (id INTEGER PRIMARY KEY, first_name TEXT, last_name TEXT)`,
	`CREATE TABLE appointments (
		id INTEGER PRIMARY KEY,
		doctor_id INTEGER REFERENCES doctors(id),
		notes TEXT,
		scheduled_at TIMESTAMP
	)`,
	`CREATE TABLE tag (label TEXT)`,
}

// newTestDB returns a DB over a fresh in-memory SQLite database.
func newTestDB(c *qt.C) *orm.DB {
	conn, err := dbschema.ConnectToDatabase("sqlite::memory:")
	c.Assert(err, qt.IsNil)

	for _, stmt := range testSchema {
		_, err := conn.ExecContext(context.Background(), stmt)
		c.Assert(err, qt.IsNil)
	}

	db := orm.New(conn)
	c.Cleanup(func() { _ = db.Close() })
	return db
}
