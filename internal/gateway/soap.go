package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metrostaff/timeclock/internal/errs"
	"github.com/metrostaff/timeclock/internal/model"
)

const (
	soapNS      = "http://msiwebtrax.com/"
	envelopeNS  = "http://schemas.xmlsoap.org/soap/envelope/"
	summaryPath = "Services/MSIWebTraxCheckInSummary.asmx"
	checkinPath = "Services/MSIWebTraxCheckIn.asmx"

	opRecordSwipe         = "RecordSwipeSummary"
	opRecordSwipeOverride = "RecordSwipeSummaryDepartmentOverride"
	opSaveImage           = "SaveImage"

	// swipe input field separator, fixed by the remote contract
	swipeSep = "|*|"

	maxResponseBytes = 1 << 20
)

// SOAPClient is the production Gateway implementation. It is stateless
// across calls except for the lazily created HTTP client, whose pooled
// connections are re-established transparently after failures.
type SOAPClient struct {
	endpoint string
	username string
	password string
	clientID int
	timeout  time.Duration
	log      *zap.Logger

	once  sync.Once
	httpc *http.Client
}

var _ Gateway = (*SOAPClient)(nil)

// NewSOAPClient constructs the gateway for the given service endpoint
// (e.g. "https://msiwebtrax.com/").
func NewSOAPClient(endpoint, username, password string, clientID int, timeout time.Duration, log *zap.Logger) *SOAPClient {
	return &SOAPClient{
		endpoint: strings.TrimSuffix(endpoint, "/") + "/",
		username: username,
		password: password,
		clientID: clientID,
		timeout:  timeout,
		log:      log,
	}
}

func (c *SOAPClient) client() *http.Client {
	c.once.Do(func() {
		c.httpc = &http.Client{Timeout: c.timeout}
	})
	return c.httpc
}

// --- request envelope ---

type reqEnvelope struct {
	XMLName xml.Name  `xml:"soap:Envelope"`
	NS      string    `xml:"xmlns:soap,attr"`
	Header  reqHeader `xml:"soap:Header"`
	Body    reqBody   `xml:"soap:Body"`
}

type reqHeader struct {
	Credentials userCredentials
}

type userCredentials struct {
	XMLName  xml.Name `xml:"UserCredentials"`
	NS       string   `xml:"xmlns,attr"`
	UserName string   `xml:"UserName"`
	PWD      string   `xml:"PWD"`
}

type reqBody struct {
	Op any
}

type recordSwipeReq struct {
	XMLName    xml.Name
	NS         string `xml:"xmlns,attr"`
	SwipeInput string `xml:"swipeInput"`
}

type saveImageReq struct {
	XMLName  xml.Name
	NS       string `xml:"xmlns,attr"`
	FileName string `xml:"fileName"`
	Data     string `xml:"data"` // base64 JPEG bytes
	Dir      string `xml:"dir"`  // client id on the remote side
}

// --- response envelope ---

type respEnvelope struct {
	Body struct {
		Summary  *recordSwipeResult `xml:"RecordSwipeSummaryResponse>RecordSwipeSummaryResult"`
		Override *recordSwipeResult `xml:"RecordSwipeSummaryDepartmentOverrideResponse>RecordSwipeSummaryDepartmentOverrideResult"`
		Image    *saveImageResult   `xml:"SaveImageResponse>SaveImageResult"`
		Fault    *soapFault         `xml:"Fault"`
	} `xml:"Body"`
}

type recordSwipeResult struct {
	ReturnInfo struct {
		PunchSuccess    bool   `xml:"PunchSuccess"`
		PunchType       string `xml:"PunchType"`
		FirstName       string `xml:"FirstName"`
		LastName        string `xml:"LastName"`
		PunchException  string `xml:"PunchException"`
		SystemErrorCode string `xml:"SystemErrorCode"`
	} `xml:"RecordSwipeReturnInfo"`
	CurrentWeeklyHours string `xml:"CurrentWeeklyHours"`
}

type saveImageResult struct {
	SystemErrorCode string `xml:"SystemErrorCode"`
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

// SubmitPunch packs the swipe input and calls RecordSwipeSummary (or the
// department-override variant). The raw scanned id goes out as-is, prefix
// included.
func (c *SOAPClient) SubmitPunch(ctx context.Context, rawEmployeeID string, punchTime time.Time, deptOverride *int) (model.PunchResult, error) {
	swipe := rawEmployeeID + swipeSep + punchTime.UTC().Format(time.RFC3339)
	op := opRecordSwipe
	if deptOverride != nil {
		swipe += swipeSep + strconv.Itoa(*deptOverride)
		op = opRecordSwipeOverride
	}

	c.log.Info("punch send",
		zap.String("employee", rawEmployeeID),
		zap.Time("punchTime", punchTime),
		zap.String("op", op),
	)

	env, err := c.post(ctx, c.endpoint+summaryPath, op, recordSwipeReq{
		XMLName:    xml.Name{Local: op},
		NS:         soapNS,
		SwipeInput: swipe,
	})
	if err != nil {
		return model.PunchResult{}, err
	}

	res := env.Body.Summary
	if res == nil {
		res = env.Body.Override
	}
	if res == nil {
		// a 200 without the result element is not the attendance service
		// answering; treat it like a broken connection so the punch queues
		return model.PunchResult{}, fmt.Errorf("submit punch: missing result element: %w", errs.ErrNetwork)
	}
	return c.decodeSwipe(rawEmployeeID, res)
}

func (c *SOAPClient) decodeSwipe(rawEmployeeID string, res *recordSwipeResult) (model.PunchResult, error) {
	info := res.ReturnInfo
	if code, err := strconv.Atoi(strings.TrimSpace(info.SystemErrorCode)); err == nil {
		if msg, known := model.MessageForSystemError(code); known {
			return model.PunchResult{}, fmt.Errorf("submit punch: %s (code %d): %w", msg, code, errs.ErrServiceFault)
		}
	}

	out := model.PunchResult{
		Success:   info.PunchSuccess,
		PunchType: model.PunchType(strings.ToLower(info.PunchType)),
		FirstName: info.FirstName,
		LastName:  info.LastName,
	}
	if exc := strings.TrimSpace(info.PunchException); exc != "" {
		if n, err := strconv.Atoi(exc); err == nil {
			out.ExceptionCode = n
		}
	}
	if wh := strings.TrimSpace(res.CurrentWeeklyHours); wh != "" {
		if d, err := decimal.NewFromString(wh); err == nil {
			out.WeeklyHours = d
			out.HasWeekly = true
		}
	}

	if !out.Success {
		msg := model.MessageForException(out.ExceptionCode)
		c.log.Info("punch rejected",
			zap.String("employee", rawEmployeeID),
			zap.Int("exception", out.ExceptionCode),
		)
		return out, fmt.Errorf("submit punch: %s (exception %d): %w", msg.EN, out.ExceptionCode, errs.ErrServiceFault)
	}

	c.log.Info("punch accepted",
		zap.String("employee", rawEmployeeID),
		zap.String("punchType", string(out.PunchType)),
		zap.String("weeklyHours", res.CurrentWeeklyHours),
	)
	return out, nil
}

// UploadPhoto sends the punch photo via SaveImage using the fixed filename
// convention.
func (c *SOAPClient) UploadPhoto(ctx context.Context, imageEmployeeID string, photo []byte, punchTime time.Time) error {
	filename := model.PhotoFilename(imageEmployeeID, punchTime)
	env, err := c.post(ctx, c.endpoint+checkinPath, opSaveImage, saveImageReq{
		XMLName:  xml.Name{Local: opSaveImage},
		NS:       soapNS,
		FileName: filename,
		Data:     base64.StdEncoding.EncodeToString(photo),
		Dir:      strconv.Itoa(c.clientID),
	})
	if err != nil {
		return err
	}
	if img := env.Body.Image; img != nil {
		if code, cerr := strconv.Atoi(strings.TrimSpace(img.SystemErrorCode)); cerr == nil && code != 0 {
			msg, _ := model.MessageForSystemError(code)
			return fmt.Errorf("upload photo %s: %s (code %d): %w", filename, msg, code, errs.ErrServiceFault)
		}
	}
	c.log.Info("photo uploaded", zap.String("file", filename), zap.Int("bytes", len(photo)))
	return nil
}

func (c *SOAPClient) post(ctx context.Context, url, action string, op any) (*respEnvelope, error) {
	payload, err := xml.Marshal(reqEnvelope{
		NS: envelopeNS,
		Header: reqHeader{Credentials: userCredentials{
			NS:       soapNS,
			UserName: c.username,
			PWD:      c.password,
		}},
		Body: reqBody{Op: op},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal: %w", action, err)
	}

	body := append([]byte(xml.Header), payload...)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `"`+soapNS+action+`"`)

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, c.classify(action, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classify(action, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%s: http %d: %w", action, resp.StatusCode, errs.ErrNetwork)
	default:
		// faults and unexpected statuses are delivery failures, not the
		// service judging the punch; the record stays queued for retry
		var env respEnvelope
		if xml.Unmarshal(raw, &env) == nil && env.Body.Fault != nil {
			return nil, fmt.Errorf("%s: soap fault %s: %s: %w",
				action, env.Body.Fault.Code, env.Body.Fault.String, errs.ErrNetwork)
		}
		return nil, fmt.Errorf("%s: http %d: %w", action, resp.StatusCode, errs.ErrNetwork)
	}

	var env respEnvelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		// garbage 200s come from proxies and captive portals
		return nil, fmt.Errorf("%s: decode: %w", action, errs.ErrNetwork)
	}
	if env.Body.Fault != nil {
		return nil, fmt.Errorf("%s: soap fault %s: %s: %w",
			action, env.Body.Fault.Code, env.Body.Fault.String, errs.ErrNetwork)
	}
	return &env, nil
}

// classify maps transport-level failures onto the transient sentinels. A
// stuck call surfaces as Timeout, everything else connectivity-shaped as
// Network.
func (c *SOAPClient) classify(action string, err error) error {
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %v: %w", action, err, errs.ErrTimeout)
	case errors.As(err, &nerr) && nerr.Timeout():
		return fmt.Errorf("%s: %v: %w", action, err, errs.ErrTimeout)
	default:
		return fmt.Errorf("%s: %v: %w", action, err, errs.ErrNetwork)
	}
}
