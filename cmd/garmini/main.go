package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tarm/serial"

	"github.com/jandelgado/garmini-go"
	"github.com/jandelgado/garmini-go/igc"
	"github.com/jandelgado/garmini-go/link"
)

var programName = filepath.Base(os.Args[0])

func usage() {
	fmt.Fprintf(os.Stderr, `%[1]s - download track log from Garmin GPSs
Usage: %[1]s [options] [command]
Options:
	-h, --help			show this help
	-q, --quiet			suppress progress output
	-d, --device=DEVICE		select device (default is /dev/ttyS0)
	-D, --directory=DIR		download tracklogs to DIR
	-l, --log=FILENAME		log communication to FILENAME ("-" for stdout)
	-o, --power-off			power off GPS after the command completes
IGC options:
	-m, --manufacturer=STRING	override manufacturer
	-s, --serial-number=NUMBER	override serial number
	-p, --pilot=PILOT		set pilot
	-t, --glider-type=TYPE		set glider type
	-g, --glider-id=ID		set glider id
	-c, --competition-class=CLASS	set competition class
	-i, --competition-id=ID	set competition id
	-b, --barometric-altimeter=0|1	set whether GPS has a barometric altimeter
Commands:
	id		identify GPS
	do, download	download tracklogs
	ig, igc		write entire track log to stdout
`, programName)
}

func main() {
	device := flag.String("d", defaultDevice(), "serial device")
	flag.StringVar(device, "device", *device, "serial device")
	directory := flag.String("D", "", "download tracklogs to DIR")
	flag.StringVar(directory, "directory", *directory, "download tracklogs to DIR")
	logPath := flag.String("l", "", `log communication to FILENAME ("-" for stdout)`)
	flag.StringVar(logPath, "log", *logPath, `log communication to FILENAME ("-" for stdout)`)
	powerOff := flag.Bool("o", false, "power off GPS after the command completes")
	flag.BoolVar(powerOff, "power-off", *powerOff, "power off GPS after the command completes")
	manufacturer := flag.String("m", "", "override manufacturer")
	flag.StringVar(manufacturer, "manufacturer", *manufacturer, "override manufacturer")
	serialNumber := flag.Int("s", 0, "override serial number")
	flag.IntVar(serialNumber, "serial-number", *serialNumber, "override serial number")
	pilot := flag.String("p", "", "set pilot")
	flag.StringVar(pilot, "pilot", *pilot, "set pilot")
	gliderType := flag.String("t", "", "set glider type")
	flag.StringVar(gliderType, "glider-type", *gliderType, "set glider type")
	gliderID := flag.String("g", "", "set glider id")
	flag.StringVar(gliderID, "glider-id", *gliderID, "set glider id")
	competitionClass := flag.String("c", "", "set competition class")
	flag.StringVar(competitionClass, "competition-class", *competitionClass, "set competition class")
	competitionID := flag.String("i", "", "set competition id")
	flag.StringVar(competitionID, "competition-id", *competitionID, "set competition id")
	barometricAltimeter := flag.String("b", "", "set whether GPS has a barometric altimeter (0|1)")
	flag.StringVar(barometricAltimeter, "barometric-altimeter", *barometricAltimeter, "set whether GPS has a barometric altimeter (0|1)")
	quiet := flag.Bool("q", false, "suppress progress output")
	flag.BoolVar(quiet, "quiet", *quiet, "suppress progress output")
	flag.Usage = usage
	flag.Parse()

	command := "download"
	if flag.NArg() > 0 {
		if flag.NArg() > 1 {
			log.Fatalf("%s: excess arguments on command line", programName)
		}
		command = flag.Arg(0)
	}

	var logWriter io.Writer
	if *logPath != "" {
		if *logPath == "-" {
			logWriter = os.Stdout
		} else {
			f, err := os.OpenFile(*logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				log.Fatalf("%s: %v", programName, err)
			}
			defer f.Close()
			logWriter = f
		}
	}

	port, err := serial.OpenPort(&serial.Config{
		Name:        *device,
		Baud:        9600,
		Size:        8,
		ReadTimeout: 10 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("%s: %v", programName, err)
	}
	defer port.Close()

	session := link.NewSession(link.NewSerialTransport(port), link.Config{
		Device: *device,
		Log:    logWriter,
		Logf:   func(format string, args ...interface{}) { log.Printf(format, args...) },
	})
	if err := session.Handshake(); err != nil {
		log.Fatalf("%s: %v", programName, err)
	}

	hasBarometricAltimeter := session.HasBarometricAltimeter()
	if *barometricAltimeter != "" {
		v, err := strconv.Atoi(*barometricAltimeter)
		if err != nil || (v != 0 && v != 1) {
			log.Fatalf("%s: invalid argument '%s'", programName, *barometricAltimeter)
		}
		hasBarometricAltimeter = v == 1
	}

	meta := igc.Metadata{
		Manufacturer:        *manufacturer,
		SerialNumber:        *serialNumber,
		Pilot:               *pilot,
		GliderType:          *gliderType,
		GliderID:            *gliderID,
		CompetitionID:       *competitionID,
		CompetitionClass:    *competitionClass,
		BarometricAltimeter: hasBarometricAltimeter,
		SoftwareVersion:     session.Product.SoftwareVersion,
		ProductDescription:  session.Product.Description,
	}

	switch command {
	case "id":
		runID(session)
	case "ig", "igc":
		runIGC(session, meta, *quiet)
	case "do", "download":
		runDownload(session, meta, *directory, *quiet)
	default:
		log.Fatalf("%s: invalid command '%s'", programName, command)
	}

	if *powerOff {
		if err := session.TurnOffPower(); err != nil {
			log.Fatalf("%s: %v", programName, err)
		}
	}
}

func defaultDevice() string {
	if d := os.Getenv("GARMINI_DEVICE"); d != "" {
		return d
	}
	return "/dev/ttyS0"
}

func runID(session *link.Session) {
	fmt.Println("---")
	fmt.Printf("product_id: %d\n", session.Product.ProductID)
	fmt.Printf("software_version: %d.%02d\n", session.Product.SoftwareVersion/100, abs(session.Product.SoftwareVersion%100))
	fmt.Printf("product_description: \"%s\"\n", garmin.EscapeString(session.Product.Description))
	fmt.Print("protocols: \"")
	for i, p := range session.Protocols {
		if i > 0 {
			fmt.Print(",")
		}
		fmt.Printf("%c%03d", p.Tag, p.Data)
	}
	fmt.Println("\"")
}

func abs(v int16) int16 {
	if v < 0 {
		return -v
	}
	return v
}

func runIGC(session *link.Session, meta igc.Metadata, quiet bool) {
	track := downloadTrack(session, quiet)
	w := igc.NewWriter(os.Stdout, meta)
	if err := w.WriteTrack(track.Points()); err != nil {
		log.Fatalf("%s: %v", programName, err)
	}
}

func runDownload(session *link.Session, meta igc.Metadata, directory string, quiet bool) {
	track := downloadTrack(session, quiet)

	segments := igc.SplitFlights(track, igc.DefaultSplitOptions)
	if len(segments) == 0 {
		segments = []garmin.Track{*track}
	}

	var lastDate time.Time
	trackNumber := 0
	for _, segment := range segments {
		points := segment.Points()
		if len(points) == 0 {
			continue
		}
		date := points[0].PosixTime()
		if sameDate(date, lastDate) {
			trackNumber++
		} else {
			trackNumber = 0
			lastDate = date
		}

		filename := fmt.Sprintf("%04d-%02d-%02d-%s-%d-%02d.IGC",
			date.Year(), int(date.Month()), date.Day(), meta.Manufacturer, meta.SerialNumber, trackNumber)
		f, err := os.Create(filepath.Join(directory, filename))
		if err != nil {
			log.Fatalf("%s: %v", programName, err)
		}
		w := igc.NewWriter(f, meta)
		err = w.WriteTrack(segment.Points())
		closeErr := f.Close()
		if err != nil {
			log.Fatalf("%s: %v", programName, err)
		}
		if closeErr != nil {
			log.Fatalf("%s: %v", programName, closeErr)
		}
	}
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

func downloadTrack(session *link.Session, quiet bool) *garmin.Track {
	caps, err := link.ResolveCapabilities(session.Product.ProductID, session.Protocols)
	if err != nil {
		log.Fatalf("%s: %v", programName, err)
	}

	ch, err := session.TransferTrack(caps)
	if err != nil {
		log.Fatalf("%s: %v", programName, err)
	}

	if !quiet {
		fmt.Fprint(os.Stderr, "Downloading track log: ")
	}

	start := time.Now()
	track := garmin.NewTrack(garmin.DefaultTrackCapacity)
	for r := range ch {
		if r.Err != nil {
			log.Fatalf("%s: %v", programName, r.Err)
		}
		track.Push(r.Point)
		if !quiet && r.Total > 0 {
			reportProgress(r.Index, r.Total, time.Since(start))
		}
	}
	if !quiet {
		fmt.Fprintln(os.Stderr, "100%")
	}
	return track
}

// reportProgress prints a percentage-and-ETA line, ported from the
// remaining_sec = (records-i-1) * elapsed/(i+1) arithmetic in
// garmini_transfer_trk_callback, without that function's hardcoded
// backspace-based terminal redraw.
func reportProgress(index, total int, elapsed time.Duration) {
	percent := 100 * (index + 1) / total
	remaining := time.Duration(total-index-1) * elapsed / time.Duration(index+1)
	fmt.Fprintf(os.Stderr, "\r%3d%% (ETA %02d:%02d)", percent, int(remaining.Minutes()), int(remaining.Seconds())%60)
}
