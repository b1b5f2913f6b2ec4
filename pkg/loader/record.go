package loader

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// InvalidDate replaces dates that are missing or not in YYYY-MM-DD form (zero padding optional).
var InvalidDate = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// InvalidInt replaces integer fields that are empty or not made only of digits.
const InvalidInt int64 = -1

const (
	dateLayout     = "2006-1-2" // also accepts zero padded months and days
	recordFieldLen = 14
)

var yearPattern = regexp.MustCompile(`\d{4}`)

// TestResult is one MOT test as stored in the testresults collection.
type TestResult struct {
	MotYear          int       `bson:"MotYear"`
	TestID           int64     `bson:"TestId"`
	VehicleID        int64     `bson:"VehicleId"`
	TestDate         time.Time `bson:"TestDate"`
	TestClassID      int64     `bson:"TestClassId"`
	TestType         string    `bson:"TestType"`
	TestResult       string    `bson:"TestResult"`
	TestMileage      int64     `bson:"TestMileage"`
	PostcodeRegion   string    `bson:"PostcodeRegion"`
	Make             string    `bson:"Make"`
	Model            string    `bson:"Model"`
	Colour           string    `bson:"Colour"`
	FuelType         string    `bson:"FuelType"`
	CylinderCapacity int64     `bson:"CylinderCapacity"`
	FirstUseDate     time.Time `bson:"FirstUseDate"`
}

// YearFromFilename returns the first run of four digits in name, e.g. 2013 for
// "test_result_2013.txt".
func YearFromFilename(name string) (int, error) {
	match := yearPattern.FindString(name)
	if match == "" {
		return 0, fmt.Errorf("no 4 digit year in file name %q", name)
	}
	return strconv.Atoi(match)
}

// ParseRecord maps the fields of one line onto a TestResult. Fields beyond the fourteenth are
// ignored. The second return value reports how many date fields fell back to InvalidDate because
// they could not be parsed (empty dates are not counted).
func ParseRecord(fields []string, motYear int) (TestResult, int, error) {
	if len(fields) < recordFieldLen {
		return TestResult{}, 0, fmt.Errorf("expected at least %d fields, got %d", recordFieldLen, len(fields))
	}

	testDate, testDateOK := parseDate(fields[2])
	firstUse, firstUseOK := parseDate(fields[13])

	invalid := 0
	if !testDateOK {
		invalid++
	}
	if !firstUseOK {
		invalid++
	}

	return TestResult{
		MotYear:          motYear,
		TestID:           parseInt(fields[0]),
		VehicleID:        parseInt(fields[1]),
		TestDate:         testDate,
		TestClassID:      parseInt(fields[3]),
		TestType:         fields[4],
		TestResult:       fields[5],
		TestMileage:      parseInt(fields[6]),
		PostcodeRegion:   fields[7],
		Make:             fields[8],
		Model:            fields[9],
		Colour:           fields[10],
		FuelType:         fields[11],
		CylinderCapacity: parseInt(fields[12]),
		FirstUseDate:     firstUse,
	}, invalid, nil
}

func parseInt(field string) int64 {
	if field == "" {
		return InvalidInt
	}
	for _, r := range field {
		if r < '0' || r > '9' {
			return InvalidInt
		}
	}
	n, err := strconv.ParseInt(field, 10, 64)
	if err != nil {
		return InvalidInt
	}
	return n
}

// parseDate reports false only for a non-empty field that is not a valid date.
func parseDate(field string) (time.Time, bool) {
	if field == "" {
		return InvalidDate, true
	}
	t, err := time.Parse(dateLayout, field)
	if err != nil {
		return InvalidDate, false
	}
	return t, true
}
