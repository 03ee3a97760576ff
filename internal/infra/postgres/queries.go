package postgres

// vendorMonthsQuery rolls invoices and early payment requests up to one row
// per vendor PAN, buyer organization and month. Invoices are de-duplicated
// by (invoice number, partner, fiscal year), keeping the first upload.
// $1 and $2 bound the month range, inclusive.
const vendorMonthsQuery = `
WITH invoices AS (
  SELECT DISTINCT ON (
    trim(i."invoiceNumber"),
    i."partnerId",
    CASE
      WHEN extract(month FROM i."generatedAtUtc") >= 4
        THEN extract(year FROM i."generatedAtUtc")
      ELSE extract(year FROM i."generatedAtUtc") - 1
    END
  ) i.*
  FROM discounting."Invoice" i
  WHERE i."amount" > 0
    AND DATE_TRUNC('day', i."dueDateAtUtc") > DATE_TRUNC('day', i."createdAt") + INTERVAL '1 day'
    AND DATE_TRUNC('day', i."createdAt") < DATE_TRUNC('day', i."generatedAtUtc") + INTERVAL '180 day'
  ORDER BY
    trim(i."invoiceNumber"),
    i."partnerId",
    CASE
      WHEN extract(month FROM i."generatedAtUtc") >= 4
        THEN extract(year FROM i."generatedAtUtc")
      ELSE extract(year FROM i."generatedAtUtc") - 1
    END,
    i."createdAt" ASC
),
intake AS (
  SELECT
    i."partnerId"                                 AS partner_id,
    DATE_TRUNC('month', i."createdAt")::date      AS month,
    SUM(i."amount")                               AS intake,
    SUM(
      DATE_PART('day', DATE_TRUNC('day', i."dueDateAtUtc") - DATE_TRUNC('day', i."generatedAtUtc"))
      * i."amount"
    ) / NULLIF(SUM(i."amount"), 0)                AS credit_period_days,
    SUM(
      (DATE_PART('day', DATE_TRUNC('day', i."dueDateAtUtc") - DATE_TRUNC('day', i."createdAt")) - p."settlementDays")
      * i."amount"
    ) / NULLIF(SUM(i."amount"), 0)                AS max_days_advanced
  FROM invoices i
  JOIN tenant."Partner" p ON p."id" = i."partnerId"
  GROUP BY 1, 2
),
requests AS (
  SELECT
    epr."partnerId"                               AS partner_id,
    DATE_TRUNC('month', epr."activatedOn")::date  AS month,
    SUM(inv."amount")                             AS conversion,
    SUM(inv."amount" * COALESCE(epri."daysAdvanced", 0)) / NULLIF(SUM(inv."amount"), 0)
                                                  AS days_advanced,
    SUM(epri."effectiveDiscount")                 AS discount,
    SUM(DISTINCT epr."platformFee")               AS platform_fee
  FROM discounting."EarlyPaymentRequest"        epr
  JOIN discounting."EarlyPaymentRequestInvoice" epri ON epr."id" = epri."eprId"
  JOIN discounting."Invoice"                    inv  ON inv."id" = epri."invoiceId"
  WHERE epri."eprInvoiceStatusId" IN (0, 1, 2)
  GROUP BY 1, 2
)
SELECT
  vendororg."PAN"                                 AS vendor_id,
  vendororg."legalName"                           AS vendor_name,
  buyerorg."id"                                   AS buyer_id,
  buyerorg."legalName"                            AS buyer_name,
  COALESCE(t.month, r.month)                      AS month,
  COALESCE(t.intake, 0)                           AS intake,
  COALESCE(r.conversion, 0)                       AS conversion,
  t.credit_period_days,
  r.days_advanced,
  t.max_days_advanced,
  r.discount,
  r.platform_fee,
  (r.discount / NULLIF(r.conversion, 0)) * (365 / NULLIF(r.days_advanced, 0)) * 100
                                                  AS apr
FROM intake t
FULL JOIN requests r
  ON r.partner_id = t.partner_id
 AND r.month      = t.month
JOIN tenant."Partner"      p         ON p."id" = COALESCE(t.partner_id, r.partner_id)
JOIN tenant."Organization" vendororg ON vendororg."id" = p."vendorOrgId"
JOIN tenant."Organization" buyerorg  ON buyerorg."id" = p."buyerOrgId"
WHERE COALESCE(t.month, r.month) BETWEEN $1 AND $2
ORDER BY 1, 3, 5
`

// financedInvoicesQuery returns every invoice financed under an active
// early payment request, with the inputs the revenue-share rules need.
const financedInvoicesQuery = `
SELECT
  vendororg."PAN"                                 AS vendor_id,
  buyerorg."id"                                   AS buyer_id,
  DATE_TRUNC('month', epr."activatedOn")::date    AS month,
  inv."amount"                                    AS amount,
  epri."effectiveDiscount"                        AS effective_discount,
  epri."effectiveDiscountRate"                    AS discount_rate,
  epri."apr"                                      AS apr,
  epri."daysAdvanced"                             AS days_advanced,
  inv."dueDateAtUtc"::date                        AS due_date,
  inv."estimatedDueDateAtUtc"::date               AS estimated_due_date,
  epri."toBeClearedOnUtc"::date                   AS clearance_date
FROM discounting."EarlyPaymentRequest"        epr
JOIN discounting."EarlyPaymentRequestInvoice" epri      ON epr."id" = epri."eprId"
JOIN discounting."Invoice"                    inv       ON inv."id" = epri."invoiceId"
JOIN tenant."Partner"                         p         ON p."id" = epr."partnerId"
JOIN tenant."Organization"                    vendororg ON vendororg."id" = p."vendorOrgId"
JOIN tenant."Organization"                    buyerorg  ON buyerorg."id" = p."buyerOrgId"
WHERE epri."eprInvoiceStatusId" IN (0, 1, 2)
  AND DATE_TRUNC('month', epr."activatedOn")::date BETWEEN $1 AND $2
`
